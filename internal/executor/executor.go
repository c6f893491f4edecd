package executor

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// ErrCanceled is returned when the caller's context ends while a command runs.
var ErrCanceled = stderrors.New("command canceled")

// ExitTimedOut is the exit code reported for a command killed by its timeout.
const ExitTimedOut = -1

const (
	defaultShell   = "/bin/sh"
	maxLineLength  = 1024 * 1024
	pipeDrainDelay = 5 * time.Second
)

// LineSink receives every output line of a running command, already redacted.
type LineSink func(line string)

// Invocation describes one process to run.
type Invocation struct {
	Stage   string
	Command string
	Dir     string
	// Env is appended to the inherited process environment (KEY=VALUE).
	Env     []string
	Timeout time.Duration
	Sink    LineSink
}

// Result describes a finished process.
type Result struct {
	Command  string
	Dir      string
	ExitCode int
	Output   []byte
	Duration time.Duration
	TimedOut bool
}

// Success reports whether the process exited with status zero.
func (r *Result) Success() bool { return r != nil && r.ExitCode == 0 && !r.TimedOut }

// Executor runs invocations.
type Executor interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// ShellExecutor runs each invocation with `sh -c`, merging stdout and stderr.
// Commands inherit the process environment minus HiddenEnv and minus any
// variable whose value carries a registered secret; Invocation.Env is the
// only way to hand a secret to a command.
type ShellExecutor struct {
	Shell     string
	Redactor  *Redactor
	HiddenEnv []string
}

// NewShellExecutor creates a ShellExecutor that scrubs the given secrets from output.
func NewShellExecutor(secrets ...string) *ShellExecutor {
	return &ShellExecutor{Shell: defaultShell, Redactor: NewRedactor(secrets...)}
}

// Run executes inv and blocks until the process ends.
func (e *ShellExecutor) Run(ctx context.Context, inv Invocation) (*Result, error) {
	shell := e.Shell
	if shell == "" {
		shell = defaultShell
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	// #nosec G204 -- commands come from the job file by design
	cmd := exec.CommandContext(runCtx, shell, "-c", inv.Command)
	cmd.Dir = inv.Dir
	cmd.Env = append(e.environ(), inv.Env...)
	cmd.WaitDelay = pipeDrainDelay

	outReader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	display := e.Redactor.Redact(inv.Command)
	slog.Debug("Starting command", logfields.Stage(inv.Stage), logfields.Command(display), logfields.Path(inv.Dir))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", display, err)
	}

	var outBuf bytes.Buffer
	in := bufio.NewScanner(outReader)
	in.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	in.Split(scanLines)
	for in.Scan() {
		line := e.Redactor.Redact(in.Text())
		if outBuf.Len() > 0 {
			outBuf.WriteByte('\n')
		}
		outBuf.WriteString(line)
		if inv.Sink != nil {
			inv.Sink(line)
		}
	}
	scanErr := in.Err()
	if scanErr != nil {
		marker := fmt.Sprintf("[docpipe: output unreadable, remainder discarded: %v]", scanErr)
		slog.Warn("Command output unreadable", logfields.Stage(inv.Stage), logfields.Error(scanErr))
		if outBuf.Len() > 0 {
			outBuf.WriteByte('\n')
		}
		outBuf.WriteString(marker)
		if inv.Sink != nil {
			inv.Sink(marker)
		}
		_, _ = io.Copy(io.Discard, outReader)
	}
	waitErr := cmd.Wait()

	res := &Result{
		Command:  display,
		Dir:      inv.Dir,
		Output:   outBuf.Bytes(),
		Duration: time.Since(start),
	}
	if res.Dir == "" {
		res.Dir = "."
	}

	if ctx.Err() != nil {
		res.ExitCode = ExitTimedOut
		return res, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}
	if runCtx.Err() != nil {
		res.ExitCode = ExitTimedOut
		res.TimedOut = true
		slog.Warn("Command timed out", logfields.Stage(inv.Stage), slog.Duration("timeout", inv.Timeout))
		return res, nil
	}

	code, err := exitCodeFromErr(waitErr)
	if err != nil {
		return nil, fmt.Errorf("wait %q: %w", display, err)
	}
	if scanErr != nil && code == 0 {
		return nil, fmt.Errorf("read output of %q: %w", display, scanErr)
	}
	res.ExitCode = code

	slog.Debug("Command finished", logfields.Stage(inv.Stage), logfields.ExitCode(code), logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, nil
}

// environ returns the inherited environment without hidden or secret-bearing variables.
func (e *ShellExecutor) environ() []string {
	base := os.Environ()
	env := make([]string, 0, len(base))
	for _, kv := range base {
		name, value, _ := strings.Cut(kv, "=")
		if slices.Contains(e.HiddenEnv, name) || e.Redactor.contains(value) {
			continue
		}
		env = append(env, kv)
	}
	return env
}

// scanLines is bufio.ScanLines that hands out over-long lines in
// maxLineLength chunks instead of failing.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= maxLineLength {
		return maxLineLength, data[:maxLineLength], nil
	}
	return advance, token, err
}

func exitCodeFromErr(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if stderrors.As(err, &ee) {
		return ee.ExitCode(), nil
	}
	return 0, err
}
