package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/docpipe/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force  bool   `help:"Overwrite existing job file"`
	Output string `short:"o" name:"output" help:"Directory to write docpipe.yaml into" default:"."`
}

func (i *InitCmd) Run(g *Global, _ *CLI) error {
	path := filepath.Join(i.Output, config.DefaultFile)
	out := g.out()
	_, _ = fmt.Fprintf(out, "Writing job file to %s\n", path)
	if err := config.Init(path, i.Force); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "initialized successfully")
	return nil
}
