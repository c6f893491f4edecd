package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"git.home.luguber.info/inful/docpipe/internal/pipeline"
)

// PlanCmd implements the 'plan' command.
type PlanCmd struct {
	JobFlag
	ContextFlags
	WorkDir string `name:"workdir" help:"Repository directory" default:"." type:"path"`
	JSON    bool   `name:"json" help:"Print the plan as JSON"`
}

func (p *PlanCmd) Run(g *Global, _ *CLI) error {
	spec, err := p.load()
	if err != nil {
		return err
	}
	rc, err := p.resolve(p.WorkDir)
	if err != nil {
		return err
	}
	plan := pipeline.Plan(spec, rc)

	out := g.out()
	if p.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	_, _ = fmt.Fprintf(out, "branch=%q pull_request=%t workdir=%s\n", rc.Branch, rc.PullRequest, filepath.Clean(p.WorkDir))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PHASE\t#\tSTAGE\tSTATE\tRUNS\tCOMMAND")
	for _, st := range plan {
		runs := "yes"
		if !st.Runs {
			runs = "no (" + st.Predicate + ")"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", st.Phase, st.Index, st.Name, st.State, runs, st.Command)
	}
	return tw.Flush()
}
