package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/eventstore"
	"git.home.luguber.info/inful/docpipe/internal/job"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
	"git.home.luguber.info/inful/docpipe/internal/metrics"
)

// StageInfo identifies a stage while it runs.
type StageInfo struct {
	Phase   Phase    `json:"phase"`
	Index   int      `json:"index"`
	Name    string   `json:"name"`
	Kind    job.Kind `json:"kind"`
	Role    job.Role `json:"role,omitempty"`
	Command string   `json:"command,omitempty"`
}

// Observer receives callbacks for every transition, stage boundary and
// output line of a run. Calls arrive sequentially from the runner goroutine.
type Observer interface {
	OnStateChange(phase Phase, from, to State)
	OnStageStart(info StageInfo)
	OnStageOutput(info StageInfo, line string)
	OnStageComplete(result StageResult)
	OnRunComplete(outcome *Outcome)
}

// NoopObserver is a no-op implementation.
type NoopObserver struct{}

func (NoopObserver) OnStateChange(Phase, State, State) {}
func (NoopObserver) OnStageStart(StageInfo)            {}
func (NoopObserver) OnStageOutput(StageInfo, string)   {}
func (NoopObserver) OnStageComplete(StageResult)       {}
func (NoopObserver) OnRunComplete(*Outcome)            {}

// MultiObserver fans every callback out to its members in order.
type MultiObserver []Observer

func (m MultiObserver) OnStateChange(phase Phase, from, to State) {
	for _, o := range m {
		o.OnStateChange(phase, from, to)
	}
}

func (m MultiObserver) OnStageStart(info StageInfo) {
	for _, o := range m {
		o.OnStageStart(info)
	}
}

func (m MultiObserver) OnStageOutput(info StageInfo, line string) {
	for _, o := range m {
		o.OnStageOutput(info, line)
	}
}

func (m MultiObserver) OnStageComplete(result StageResult) {
	for _, o := range m {
		o.OnStageComplete(result)
	}
}

func (m MultiObserver) OnRunComplete(outcome *Outcome) {
	for _, o := range m {
		o.OnRunComplete(outcome)
	}
}

// LogObserver forwards everything to a slog.Logger. Output lines are logged
// at info level so the CI log shows the command output in order.
type LogObserver struct {
	log *slog.Logger
}

// NewLogObserver returns a LogObserver; a nil logger uses slog.Default().
func NewLogObserver(l *slog.Logger) *LogObserver {
	if l == nil {
		l = slog.Default()
	}
	return &LogObserver{log: l}
}

func (o *LogObserver) OnStateChange(phase Phase, from, to State) {
	o.log.Debug("State change", logfields.Phase(string(phase)), slog.String("from", string(from)), logfields.State(string(to)))
}

func (o *LogObserver) OnStageStart(info StageInfo) {
	o.log.Info("Stage started",
		logfields.Phase(string(info.Phase)),
		logfields.Stage(info.Name),
		logfields.StageIndex(info.Index),
		logfields.Command(info.Command))
}

func (o *LogObserver) OnStageOutput(info StageInfo, line string) {
	o.log.Info(line, logfields.Stage(info.Name))
}

func (o *LogObserver) OnStageComplete(r StageResult) {
	attrs := []any{
		logfields.Phase(string(r.Phase)),
		logfields.Stage(r.Name),
		logfields.StageIndex(r.Index),
		logfields.ExitCode(r.ExitCode),
		logfields.DurationMS(float64(r.Duration.Milliseconds())),
	}
	switch {
	case r.Skipped:
		o.log.Info("Stage skipped", attrs...)
	case r.Success():
		o.log.Info("Stage succeeded", attrs...)
	default:
		if r.Err != "" {
			attrs = append(attrs, slog.String(logfields.KeyError, r.Err))
		}
		o.log.Error("Stage failed", append(attrs, slog.Bool("timed_out", r.TimedOut))...)
	}
}

func (o *LogObserver) OnRunComplete(out *Outcome) {
	attrs := []any{
		logfields.RunID(out.RunID),
		logfields.Status(string(out.Status)),
		slog.String("publish", string(out.Publish.Status)),
		logfields.DurationMS(float64(out.Duration().Milliseconds())),
	}
	if out.Status != StatusSucceeded {
		o.log.Error("Run finished", append(attrs, logfields.Stage(out.FailedStage), logfields.StageIndex(out.FailedIndex))...)
		return
	}
	if out.Publish.Status == PublishFailed {
		o.log.Warn("Run finished, publish failed", append(attrs, slog.String("step", out.Publish.FailedStep))...)
		return
	}
	o.log.Info("Run finished", attrs...)
}

// RecorderObserver adapts metrics.Recorder into an Observer.
type RecorderObserver struct {
	NoopObserver
	rec metrics.Recorder
}

// NewRecorderObserver returns an observer feeding rec; nil means NoopRecorder.
func NewRecorderObserver(rec metrics.Recorder) *RecorderObserver {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &RecorderObserver{rec: rec}
}

func (o *RecorderObserver) OnStageComplete(r StageResult) {
	label := metrics.ResultSuccess
	switch {
	case r.Skipped:
		label = metrics.ResultSkipped
	case r.Cancelled:
		label = metrics.ResultCanceled
	case r.TimedOut:
		label = metrics.ResultTimedOut
	case !r.Success():
		label = metrics.ResultFailed
	}
	if !r.Skipped {
		o.rec.ObserveStageDuration(string(r.Phase), r.Name, r.Duration)
	}
	o.rec.IncStageResult(string(r.Phase), r.Name, label)
}

func (o *RecorderObserver) OnRunComplete(out *Outcome) {
	o.rec.ObserveRunDuration(out.Duration())
	o.rec.IncRunOutcome(string(out.Status))
	o.rec.IncPublishOutcome(string(out.Publish.Status))
}

// StageLogOpener creates the per-stage log file; workspace.Manager implements it.
type StageLogOpener interface {
	OpenStageLog(phase string, index int, name string) (io.WriteCloser, error)
}

// StageLogObserver writes each stage's output lines into its own log file.
type StageLogObserver struct {
	NoopObserver
	opener StageLogOpener
	mu     sync.Mutex
	open   map[string]io.WriteCloser
}

// NewStageLogObserver returns an observer writing stage logs through opener.
func NewStageLogObserver(opener StageLogOpener) *StageLogObserver {
	return &StageLogObserver{opener: opener, open: map[string]io.WriteCloser{}}
}

func stageKey(phase Phase, index int) string { return fmt.Sprintf("%s/%d", phase, index) }

func (o *StageLogObserver) OnStageStart(info StageInfo) {
	w, err := o.opener.OpenStageLog(string(info.Phase), info.Index, info.Name)
	if err != nil {
		slog.Warn("Stage log unavailable", logfields.Stage(info.Name), logfields.Error(err))
		return
	}
	o.mu.Lock()
	o.open[stageKey(info.Phase, info.Index)] = w
	o.mu.Unlock()
	if info.Command != "" {
		_, _ = fmt.Fprintf(w, "$ %s\n", info.Command)
	}
}

func (o *StageLogObserver) OnStageOutput(info StageInfo, line string) {
	o.mu.Lock()
	w := o.open[stageKey(info.Phase, info.Index)]
	o.mu.Unlock()
	if w != nil {
		_, _ = io.WriteString(w, line+"\n")
	}
}

func (o *StageLogObserver) OnStageComplete(r StageResult) {
	key := stageKey(r.Phase, r.Index)
	o.mu.Lock()
	w := o.open[key]
	delete(o.open, key)
	o.mu.Unlock()
	if w == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "# exit %d after %s\n", r.ExitCode, r.Duration.Round(time.Millisecond))
	if err := w.Close(); err != nil {
		slog.Warn("Closing stage log failed", logfields.Stage(r.Name), logfields.Error(err))
	}
}

// HistoryObserver records the run and its lifecycle events in an eventstore.
// Store errors are logged and never fail the run.
type HistoryObserver struct {
	NoopObserver
	ctx     context.Context
	store   eventstore.Store
	runID   string
	rc      job.RunContext
	started time.Time
	opened  bool
}

// NewHistoryObserver returns an observer writing to store under runID.
func NewHistoryObserver(ctx context.Context, store eventstore.Store, runID string, rc job.RunContext) *HistoryObserver {
	return &HistoryObserver{ctx: context.WithoutCancel(ctx), store: store, runID: runID, rc: rc}
}

func (o *HistoryObserver) OnStateChange(phase Phase, from, to State) {
	if !o.opened {
		o.opened = true
		o.started = time.Now()
		o.warn(o.store.RecordRun(o.ctx, eventstore.RunRecord{
			RunID:       o.runID,
			Branch:      o.rc.Branch,
			PullRequest: o.rc.PullRequest,
			Status:      "running",
			StartedAt:   o.started,
		}))
		o.append(eventstore.TypeRunStarted, "", o.rc)
	}
	o.append(eventstore.TypeStateChanged, "", map[string]string{
		"phase": string(phase), "from": string(from), "to": string(to),
	})
}

func (o *HistoryObserver) OnStageStart(info StageInfo) {
	o.append(eventstore.TypeStageStarted, info.Name, info)
}

func (o *HistoryObserver) OnStageComplete(r StageResult) {
	// Output is kept in the stage log files, not in history.
	r.Output = ""
	o.append(eventstore.TypeStageCompleted, r.Name, r)
}

func (o *HistoryObserver) OnRunComplete(out *Outcome) {
	o.append(eventstore.TypeRunCompleted, out.FailedStage, map[string]any{
		"status":         out.Status,
		"publish_status": out.Publish.Status,
		"failed_index":   out.FailedIndex,
	})
	end := out.End
	start := out.Start
	if o.opened {
		start = o.started
	}
	o.warn(o.store.RecordRun(o.ctx, eventstore.RunRecord{
		RunID:         o.runID,
		Branch:        o.rc.Branch,
		PullRequest:   o.rc.PullRequest,
		Status:        string(out.Status),
		PublishStatus: string(out.Publish.Status),
		FailedStage:   out.FailedStage,
		StartedAt:     start,
		FinishedAt:    &end,
	}))
}

func (o *HistoryObserver) append(eventType, stage string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		o.warn(fmt.Errorf("marshal %s payload: %w", eventType, err))
		return
	}
	o.warn(o.store.Append(o.ctx, o.runID, eventType, stage, data))
}

func (o *HistoryObserver) warn(err error) {
	if err != nil {
		slog.Warn("Run history write failed", logfields.RunID(o.runID), logfields.Error(err))
	}
}
