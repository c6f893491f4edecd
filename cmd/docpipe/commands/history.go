package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/eventstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	HistoryDB string `name:"history-db" help:"SQLite run history database" default:".docpipe/history.db" env:"DOCPIPE_HISTORY_DB"`
	Limit     int    `name:"limit" short:"n" help:"Number of runs to show (0 for all)" default:"20"`
	RunID     string `name:"run" help:"Show the events of a single run"`
}

func (h *HistoryCmd) Run(g *Global, _ *CLI) error {
	store, err := eventstore.NewSQLiteStore(h.HistoryDB)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if h.RunID != "" {
		return h.showRun(g, store)
	}

	limit := h.Limit
	if limit <= 0 {
		limit = -1
	}
	runs, err := store.ListRuns(g.ctx(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(g.out(), "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTARTED\tBRANCH\tPR\tSTATUS\tPUBLISH\tFAILED STAGE\tDURATION")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Branch, r.PullRequest,
			r.Status, dash(r.PublishStatus), dash(r.FailedStage), r.Duration().Round(time.Millisecond))
	}
	return tw.Flush()
}

func (h *HistoryCmd) showRun(g *Global, store eventstore.Store) error {
	run, err := store.GetRun(g.ctx(), h.RunID)
	if err != nil {
		return err
	}
	events, err := store.GetByRunID(g.ctx(), h.RunID)
	if err != nil {
		return err
	}

	out := g.out()
	_, _ = fmt.Fprintf(out, "run %s on %q (pull_request=%t): %s, publish %s\n",
		run.RunID, run.Branch, run.PullRequest, run.Status, dash(run.PublishStatus))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, ev := range events {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			ev.Timestamp().Local().Format("15:04:05.000"), ev.Type(), dash(ev.Stage()), ev.Payload())
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
