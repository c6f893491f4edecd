package commands

import (
	"fmt"

	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// ValidateCmd implements the 'validate' command.
type ValidateCmd struct {
	JobFlag
}

func (v *ValidateCmd) Run(g *Global, _ *CLI) error {
	spec, err := v.load()
	if err != nil {
		return err
	}
	stages := len(spec.MainPhase())
	g.logger().Debug("Job file valid", logfields.File(v.File), "stages", stages)
	_, _ = fmt.Fprintf(g.out(), "%s: ok (%d main stages, %d after_success entries)\n", v.File, stages, len(spec.AfterSuccess))
	return nil
}
