package commands

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docpipe/internal/events"
	"git.home.luguber.info/inful/docpipe/internal/eventstore"
	"git.home.luguber.info/inful/docpipe/internal/executor"
	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
	"git.home.luguber.info/inful/docpipe/internal/metrics"
	"git.home.luguber.info/inful/docpipe/internal/pipeline"
	"git.home.luguber.info/inful/docpipe/internal/workspace"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	JobFlag
	ContextFlags
	WorkDir       string `name:"workdir" help:"Repository directory stages run in" default:"." type:"path"`
	ReportDir     string `name:"report-dir" help:"Directory for docpipe-report.json/.txt (default: workdir)"`
	LogDir        string `name:"log-dir" help:"Keep per-stage logs under this directory (default: temporary)"`
	HistoryDB     string `name:"history-db" help:"SQLite run history database (empty disables)" default:".docpipe/history.db" env:"DOCPIPE_HISTORY_DB"`
	NATSURL       string `name:"nats-url" help:"Publish run events to this NATS server" env:"DOCPIPE_NATS_URL"`
	NATSPrefix    string `name:"nats-prefix" help:"Subject prefix for run events" default:"docpipe.runs"`
	MetricsFile   string `name:"metrics-file" help:"Write Prometheus metrics in textfile format" env:"DOCPIPE_METRICS_FILE"`
	StrictPublish bool   `name:"strict-publish" help:"Exit non-zero when publishing fails"`
}

func (r *RunCmd) Run(g *Global, _ *CLI) error {
	spec, err := r.load()
	if err != nil {
		return err
	}
	rc, err := r.resolve(r.WorkDir)
	if err != nil {
		return err
	}

	ctx := g.ctx()
	runID := uuid.NewString()
	log := g.logger().With(logfields.RunID(runID))
	log.Info("Starting run", logfields.File(r.File), logfields.Branch(rc.Branch), logfields.PullRequest(rc.PullRequest))

	var ws *workspace.Manager
	if r.LogDir != "" {
		ws = workspace.NewPersistentManager(r.LogDir, runID)
	} else {
		ws = workspace.NewManager("", runID)
	}
	if err := ws.Create(); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create run workspace").Build()
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn("Workspace cleanup failed", logfields.Error(err))
		}
	}()

	observers := []pipeline.Observer{
		pipeline.NewLogObserver(log),
		pipeline.NewStageLogObserver(ws),
	}

	var registry *prometheus.Registry
	if r.MetricsFile != "" {
		registry = prometheus.NewRegistry()
		observers = append(observers, pipeline.NewRecorderObserver(metrics.NewPrometheusRecorder(registry)))
	}

	if r.HistoryDB != "" {
		store, err := eventstore.NewSQLiteStore(r.HistoryDB)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		observers = append(observers, pipeline.NewHistoryObserver(ctx, store, runID, rc))
	}

	if r.NATSURL != "" {
		pub, err := events.Connect(r.NATSURL, r.NATSPrefix, runID)
		if err != nil {
			log.Warn("Run events disabled", logfields.Error(err))
		} else {
			defer pub.Close()
			observers = append(observers, pub)
		}
	}

	exec := executor.NewShellExecutor(rc.Token.Reveal())
	exec.HiddenEnv = []string{r.tokenEnv()}
	runner := pipeline.New(exec,
		pipeline.WithObservers(observers...),
		pipeline.WithWorkDir(r.WorkDir),
		pipeline.WithRunID(runID),
	)
	outcome := runner.Run(ctx, spec, rc)

	reportDir := r.ReportDir
	if reportDir == "" {
		reportDir = r.WorkDir
	}
	if err := outcome.Persist(reportDir); err != nil {
		log.Warn("Failed to write run report", logfields.Path(reportDir), logfields.Error(err))
	}
	if registry != nil {
		if err := metrics.WriteTextfile(r.MetricsFile, registry); err != nil {
			log.Warn("Failed to write metrics", logfields.Path(r.MetricsFile), logfields.Error(err))
		}
	}
	if ws.Persistent() {
		log.Info("Stage logs kept", logfields.Path(filepath.Join(ws.GetPath(), "logs")))
	}

	_, _ = fmt.Fprintln(g.out(), outcome.Summary())
	return outcomeError(outcome, r.StrictPublish)
}

// outcomeError maps an Outcome to the error that decides the exit status.
// A failed publish only fails the process when strict is set.
func outcomeError(out *pipeline.Outcome, strict bool) error {
	switch out.Status {
	case pipeline.StatusCancelled:
		return errors.NewError(errors.CategoryCanceled, "run cancelled").
			WithCause(out.Err()).
			WithContext("run_id", out.RunID).
			Build()
	case pipeline.StatusFailed:
		return errors.StageError(fmt.Sprintf("stage %q failed", out.FailedStage)).
			WithCause(out.Err()).
			WithContext("run_id", out.RunID).
			WithContext("stage_index", out.FailedIndex).
			Build()
	}
	if out.Publish.Status == pipeline.PublishFailed {
		if stderrors.Is(out.Publish.Err, pipeline.ErrCancelled) {
			return errors.NewError(errors.CategoryCanceled, "run cancelled during publish").
				WithCause(out.Publish.Err).
				WithContext("run_id", out.RunID).
				Build()
		}
		if !strict {
			slog.Warn("Publishing failed; exiting 0 (use --strict-publish to fail the run)",
				slog.String("step", out.Publish.FailedStep))
			return nil
		}
		return errors.PublishError(fmt.Sprintf("publish step %q failed", out.Publish.FailedStep)).
			WithCause(out.Publish.Err).
			WithContext("run_id", out.RunID).
			Build()
	}
	return nil
}
