package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docpipe/internal/discovery"
	"git.home.luguber.info/inful/docpipe/internal/executor"
	"git.home.luguber.info/inful/docpipe/internal/job"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
	"git.home.luguber.info/inful/docpipe/internal/publish"
)

// FileEnv is set to the current file for every ForEachFile invocation.
const FileEnv = "DOCPIPE_FILE"

// exitNotRun is the exit code recorded when no process exit status exists.
const exitNotRun = -1

// HistoryImporter imports a rendered site as a branch commit.
type HistoryImporter interface {
	Import(ctx context.Context, opts publish.ImportOptions) (*publish.ImportResult, error)
}

// BranchPusher pushes a branch to a remote.
type BranchPusher interface {
	Push(ctx context.Context, opts publish.PushOptions) (*publish.PushResult, error)
}

// Runner executes a job. It is not safe for concurrent Run calls.
type Runner struct {
	exec     executor.Executor
	observer Observer
	importer HistoryImporter
	pusher   BranchPusher
	workDir  string
	runID    string
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithObservers adds observers; they are called in the given order.
func WithObservers(obs ...Observer) Option {
	return func(r *Runner) {
		if m, ok := r.observer.(MultiObserver); ok {
			r.observer = append(m, obs...)
			return
		}
		r.observer = MultiObserver(obs)
	}
}

// WithWorkDir sets the directory relative stage dirs and globs resolve against.
func WithWorkDir(dir string) Option {
	return func(r *Runner) { r.workDir = dir }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithImporter replaces the go-git importer used by git-import steps.
func WithImporter(im HistoryImporter) Option {
	return func(r *Runner) { r.importer = im }
}

// WithPusher replaces the go-git pusher used by git-push steps.
func WithPusher(p BranchPusher) Option {
	return func(r *Runner) { r.pusher = p }
}

// New creates a Runner around exec.
func New(exec executor.Executor, opts ...Option) *Runner {
	r := &Runner{
		exec:     exec,
		observer: NoopObserver{},
		importer: publish.NewImporter(),
		pusher:   publish.NewPusher(),
		workDir:  ".",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r
}

// RunID returns the id stamped on outcomes of this runner.
func (r *Runner) RunID() string { return r.runID }

// run carries the per-invocation state of Run.
type run struct {
	*Runner
	rc     job.RunContext
	redact *executor.Redactor
}

// Run executes spec against rc. The spec is scheduled (defaults, role order)
// before execution; it is expected to have passed job.Validate.
func (r *Runner) Run(ctx context.Context, spec job.Spec, rc job.RunContext) *Outcome {
	spec = job.Schedule(spec)
	x := &run{Runner: r, rc: rc, redact: executor.NewRedactor(rc.Token.Reveal())}
	out := &Outcome{
		RunID:       r.runID,
		Branch:      rc.Branch,
		PullRequest: rc.PullRequest,
		FailedIndex: -1,
		Start:       r.now(),
		Publish:     PublishOutcome{Status: PublishNotRun, FailedIndex: -1},
	}
	slog.Info("Run starting", logfields.RunID(r.runID), slog.Any("context", rc), slog.String("os", spec.Platform), slog.String("toolchain", spec.Toolchain))

	x.runMain(ctx, spec, out)
	if out.Status == StatusSucceeded {
		out.Publish = x.runPublish(ctx, spec.AfterSuccess)
	} else {
		out.Publish.Reason = "main phase " + string(out.Status)
	}

	out.End = r.now()
	r.observer.OnRunComplete(out)
	return out
}

func (x *run) runMain(ctx context.Context, spec job.Spec, out *Outcome) {
	state := StatePending
	x.observer.OnStateChange(PhaseMain, "", state)
	move := func(to State) {
		if to != state {
			x.observer.OnStateChange(PhaseMain, state, to)
			state = to
		}
	}

	for i, st := range spec.MainPhase() {
		if ctx.Err() != nil {
			out.Status, out.FailedStage, out.FailedIndex = StatusCancelled, st.Name, i
			move(StateCancelled)
			out.State = state
			return
		}
		move(mainState(st, i < len(spec.Install), state))

		res := x.runStage(ctx, PhaseMain, i, st)
		out.Results = append(out.Results, res)
		if res.Success() {
			continue
		}
		out.FailedStage, out.FailedIndex = st.Name, i
		if res.Cancelled {
			out.Status = StatusCancelled
			move(StateCancelled)
		} else {
			out.Status = StatusFailed
			move(StateFailed)
		}
		out.State = state
		return
	}
	out.Status = StatusSucceeded
	move(StateSucceeded)
	out.State = state
}

func (x *run) runPublish(ctx context.Context, entries []job.Stage) PublishOutcome {
	po := PublishOutcome{Status: PublishSkipped, FailedIndex: -1}
	state := StateCheckPredicate
	x.observer.OnStateChange(PhasePublish, "", state)
	move := func(to State) {
		if to != state {
			x.observer.OnStateChange(PhasePublish, state, to)
			state = to
		}
	}
	finish := func() PublishOutcome {
		po.State = state
		return po
	}

	if len(entries) == 0 {
		po.Reason = "no after_success steps"
		move(StatePublishSkipped)
		return finish()
	}

	index, ran := 0, false
	var skipped []string
	for _, entry := range entries {
		steps := []job.Stage{entry}
		if entry.Kind() == job.KindConditional {
			steps = entry.Steps
		}
		if pred, ok := entryPredicate(entry, x.rc); !ok {
			slog.Info("Publish block skipped",
				logfields.Stage(entry.Name),
				slog.String("predicate", pred.String()),
				logfields.Branch(x.rc.Branch),
				logfields.PullRequest(x.rc.PullRequest))
			skipped = append(skipped, fmt.Sprintf("%s: %s", entry.Name, pred))
			for _, st := range steps {
				res := x.stageResult(PhasePublish, index, st)
				res.Skipped = true
				po.Results = append(po.Results, res)
				x.observer.OnStageComplete(res)
				index++
			}
			continue
		}

		for pos, st := range steps {
			if ctx.Err() != nil {
				return x.publishFailed(&po, st, index, exitNotRun, ErrCancelled, move, finish)
			}
			move(publishState(st, pos))
			res := x.runStage(ctx, PhasePublish, index, st)
			po.Results = append(po.Results, res)
			ran = true
			if !res.Success() {
				var cause error
				switch {
				case res.Cancelled:
					cause = ErrCancelled
				case res.Err != "":
					cause = stderrors.New(res.Err)
				}
				return x.publishFailed(&po, st, index, res.ExitCode, cause, move, finish)
			}
			index++
		}
	}

	if ran {
		po.Status = PublishPublished
		move(StatePublished)
		return finish()
	}
	po.Reason = strings.Join(skipped, "; ")
	po.Err = fmt.Errorf("%w (%s)", ErrPublishPredicateNotMet, po.Reason)
	move(StatePublishSkipped)
	return finish()
}

// entryPredicate returns the predicate gating an after_success entry and
// whether it holds. job.PublishPredicate gates every entry; a block's own
// predicate can only narrow it.
func entryPredicate(entry job.Stage, rc job.RunContext) (job.Predicate, bool) {
	gate := job.PublishPredicate()
	if !gate.Matches(rc) {
		return gate, false
	}
	if entry.Kind() == job.KindConditional && entry.When != nil && !entry.When.Matches(rc) {
		return *entry.When, false
	}
	return gate, true
}

func (x *run) publishFailed(po *PublishOutcome, st job.Stage, index, code int, cause error, move func(State), finish func() PublishOutcome) PublishOutcome {
	po.Status = PublishFailed
	po.FailedStep, po.FailedIndex = st.Name, index
	po.Err = &PublishStepFailure{Step: st.Name, Index: index, ExitCode: code, Err: cause}
	move(StatePublishFailed)
	return finish()
}

func (x *run) stageResult(phase Phase, index int, st job.Stage) StageResult {
	return StageResult{Phase: phase, Index: index, Name: st.Name, Kind: st.Kind(), Role: st.Role}
}

// runStage executes one stage of any kind and reports it to observers.
func (x *run) runStage(ctx context.Context, phase Phase, index int, st job.Stage) StageResult {
	res := x.stageResult(phase, index, st)
	info := StageInfo{Phase: phase, Index: index, Name: st.Name, Kind: res.Kind, Role: st.Role, Command: x.describe(st)}
	res.Command = info.Command
	x.observer.OnStageStart(info)

	var output bytes.Buffer
	emit := func(line string) {
		line = x.redact.Redact(line)
		if output.Len() > 0 {
			output.WriteByte('\n')
		}
		output.WriteString(line)
		x.observer.OnStageOutput(info, line)
	}

	start := time.Now()
	switch res.Kind {
	case job.KindCommand:
		x.runCommand(ctx, &res, st, st.Run, nil, emit)
	case job.KindForEachFile:
		x.runForEach(ctx, &res, st, emit)
	case job.KindBuiltin:
		x.runBuiltin(ctx, &res, st, emit)
	default:
		res.ExitCode = exitNotRun
		res.Err = fmt.Sprintf("stage kind %q cannot run in the %s phase", res.Kind, phase)
	}
	res.Duration = time.Since(start)
	res.Output = output.String()

	x.observer.OnStageComplete(res)
	return res
}

func (x *run) runCommand(ctx context.Context, res *StageResult, st job.Stage, command string, extraEnv []string, emit executor.LineSink) {
	inv := executor.Invocation{
		Stage:   st.Name,
		Command: command,
		Dir:     x.dir(st.Dir),
		Env:     append(x.env(st), extraEnv...),
		Timeout: st.Timeout,
		Sink:    emit,
	}
	out, err := x.exec.Run(ctx, inv)
	switch {
	case stderrors.Is(err, executor.ErrCanceled) || (err != nil && ctx.Err() != nil):
		res.Cancelled = true
		res.ExitCode = exitNotRun
		res.Err = ErrCancelled.Error()
	case err != nil:
		res.ExitCode = exitNotRun
		res.Err = x.redact.Redact(err.Error())
	default:
		res.ExitCode = out.ExitCode
		res.TimedOut = out.TimedOut
	}
}

func (x *run) runForEach(ctx context.Context, res *StageResult, st job.Stage, emit executor.LineSink) {
	root := x.dir(st.Dir)
	files, err := discovery.Files(root, st.ForEach)
	if err == nil && st.OnlyWithCode {
		files, err = discovery.FilterWithCode(root, files)
	}
	if err != nil {
		res.ExitCode = exitNotRun
		res.Err = err.Error()
		return
	}
	if len(files) == 0 {
		slog.Info("No files matched, stage succeeds trivially", logfields.Stage(st.Name), slog.String("pattern", st.ForEach))
		return
	}
	for _, f := range files {
		res.Files++
		command := strings.ReplaceAll(st.Run, job.FilePlaceholder, shellQuote(f))
		slog.Debug("Running for file", logfields.Stage(st.Name), logfields.File(f))
		x.runCommand(ctx, res, st, command, []string{FileEnv + "=" + f}, emit)
		if !res.Success() {
			res.Detail = "failed on " + f
			return
		}
	}
}

func (x *run) runBuiltin(ctx context.Context, res *StageResult, st job.Stage, emit executor.LineSink) {
	var err error
	switch st.Uses {
	case job.ActionGitImport:
		var ir *publish.ImportResult
		ir, err = x.importer.Import(ctx, publish.ImportOptions{
			RepoDir:   x.dir(withDefault(st.With, "repo", st.Dir)),
			SourceDir: x.dir(filepath.Join(st.Dir, st.With["dir"])),
			Branch:    st.With["branch"],
			Message:   st.With["message"],
			NoJekyll:  withBool(st.With, "nojekyll", true),
		})
		if err == nil {
			res.Detail = ir.Commit
			if ir.Unchanged {
				emit(fmt.Sprintf("%s unchanged at %s", st.With["branch"], ir.Commit))
			} else {
				emit(fmt.Sprintf("imported %d file(s) into %s at %s", ir.Files, st.With["branch"], ir.Commit))
			}
		}
	case job.ActionGitPush:
		var pr *publish.PushResult
		progress := newLineWriter(emit)
		pr, err = x.pusher.Push(ctx, publish.PushOptions{
			RepoDir:  x.dir(withDefault(st.With, "repo", st.Dir)),
			Remote:   st.With["remote"],
			Branch:   st.With["branch"],
			Force:    withBool(st.With, "force", true),
			Token:    x.rc.Token.Reveal(),
			Progress: progress,
		})
		progress.flush()
		if err == nil {
			if pr.UpToDate {
				emit(fmt.Sprintf("%s already up to date on %s", st.With["branch"], x.redact.Redact(pr.Remote)))
			} else {
				emit(fmt.Sprintf("pushed %s to %s", pr.RefSpec, x.redact.Redact(pr.Remote)))
			}
		}
	default:
		err = fmt.Errorf("unknown action %q", st.Uses)
	}
	if err != nil {
		res.ExitCode = 1
		if ctx.Err() != nil {
			res.Cancelled = true
		}
		res.Err = x.redact.Redact(err.Error())
		emit(res.Err)
	}
}

// describe renders the stage command for logs with secrets masked.
func (x *run) describe(st job.Stage) string {
	switch st.Kind() {
	case job.KindCommand:
		return x.redact.Redact(st.Run)
	case job.KindForEachFile:
		return x.redact.Redact(fmt.Sprintf("for %s: %s", st.ForEach, st.Run))
	case job.KindBuiltin:
		keys := slices.Sorted(maps.Keys(st.With))
		parts := []string{st.Uses}
		for _, k := range keys {
			parts = append(parts, k+"="+st.With[k])
		}
		return x.redact.Redact(strings.Join(parts, " "))
	default:
		return ""
	}
}

func (x *run) dir(d string) string {
	if d == "" {
		return x.workDir
	}
	if filepath.IsAbs(d) {
		return d
	}
	return filepath.Join(x.workDir, d)
}

// env returns the stage environment in a stable order. The credential is
// added only for stages that name a secret_env variable.
func (x *run) env(st job.Stage) []string {
	keys := slices.Sorted(maps.Keys(st.Env))
	env := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		env = append(env, k+"="+st.Env[k])
	}
	if st.SecretEnv != "" && x.rc.Token.IsSet() {
		env = append(env, st.SecretEnv+"="+x.rc.Token.Reveal())
	}
	return env
}

func withDefault(with map[string]string, key, def string) string {
	if v, ok := with[key]; ok && v != "" {
		return v
	}
	return def
}

func withBool(with map[string]string, key string, def bool) bool {
	v, ok := with[key]
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
