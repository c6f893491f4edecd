package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/job"
)

// Status is the main-phase verdict.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// PublishStatus is the publish-phase verdict, reported separately from Status.
type PublishStatus string

const (
	// PublishNotRun means the main phase did not succeed.
	PublishNotRun    PublishStatus = "not_run"
	PublishSkipped   PublishStatus = "skipped"
	PublishPublished PublishStatus = "published"
	PublishFailed    PublishStatus = "publish_failed"
)

// Report file names written by Persist.
const (
	ReportJSON = "docpipe-report.json"
	ReportText = "docpipe-report.txt"
)

// StageResult is the record of one executed (or skipped) stage.
type StageResult struct {
	Phase    Phase         `json:"phase"`
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Kind     job.Kind      `json:"kind"`
	Role     job.Role      `json:"role,omitempty"`
	Command  string        `json:"command,omitempty"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	// Files is the number of files a ForEachFile stage ran over.
	Files     int    `json:"files,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	TimedOut  bool   `json:"timed_out,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Err       string `json:"error,omitempty"`
}

// Success reports whether the stage ran to a zero exit status or was skipped.
func (r StageResult) Success() bool {
	if r.Skipped {
		return true
	}
	return r.ExitCode == 0 && !r.TimedOut && !r.Cancelled && r.Err == ""
}

// PublishOutcome is the publish-phase part of an Outcome.
type PublishOutcome struct {
	Status      PublishStatus `json:"status"`
	State       State         `json:"state,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	FailedStep  string        `json:"failed_step,omitempty"`
	FailedIndex int           `json:"failed_index"`
	Results     []StageResult `json:"results,omitempty"`
	// Err is ErrPublishPredicateNotMet for a skipped phase or a
	// *PublishStepFailure for a failed one.
	Err error `json:"-"`
}

// Outcome is the result of Runner.Run.
type Outcome struct {
	RunID       string         `json:"run_id"`
	Branch      string         `json:"branch"`
	PullRequest bool           `json:"pull_request"`
	Status      Status         `json:"status"`
	State       State          `json:"state"`
	FailedStage string         `json:"failed_stage,omitempty"`
	FailedIndex int            `json:"failed_index"`
	Results     []StageResult  `json:"results"`
	Publish     PublishOutcome `json:"publish"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
}

// Err returns the main-phase failure: a *StageFailure when a stage failed,
// ErrCancelled (possibly wrapped by a StageFailure) when cancelled, nil on success.
func (o *Outcome) Err() error {
	switch o.Status {
	case StatusSucceeded:
		return nil
	case StatusCancelled:
		if o.FailedIndex < 0 {
			return ErrCancelled
		}
		return &StageFailure{Stage: o.FailedStage, Index: o.FailedIndex, ExitCode: o.failedExitCode(), Err: ErrCancelled}
	default:
		f := &StageFailure{Stage: o.FailedStage, Index: o.FailedIndex, ExitCode: o.failedExitCode()}
		if r, ok := o.failedResult(); ok {
			f.TimedOut = r.TimedOut
			if r.Err != "" {
				f.Err = fmt.Errorf("%s", r.Err)
			}
		}
		return f
	}
}

func (o *Outcome) failedResult() (StageResult, bool) {
	for _, r := range o.Results {
		if r.Index == o.FailedIndex {
			return r, true
		}
	}
	return StageResult{}, false
}

func (o *Outcome) failedExitCode() int {
	r, _ := o.failedResult()
	return r.ExitCode
}

// Duration returns the wall time of the whole run.
func (o *Outcome) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Summary renders a short human-readable report.
func (o *Outcome) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s (branch %q, pull_request=%t)\n", o.RunID, o.Status, o.Branch, o.PullRequest)
	fmt.Fprintf(&b, "main: %d stage(s) ran", len(o.Results))
	if o.Status != StatusSucceeded && o.FailedIndex >= 0 {
		fmt.Fprintf(&b, ", halted at %q (index %d)", o.FailedStage, o.FailedIndex)
	}
	b.WriteString("\n")
	for _, r := range o.Results {
		b.WriteString("  " + resultLine(r) + "\n")
	}
	fmt.Fprintf(&b, "publish: %s", o.Publish.Status)
	switch {
	case o.Publish.Status == PublishFailed:
		fmt.Fprintf(&b, " at %q (index %d)", o.Publish.FailedStep, o.Publish.FailedIndex)
	case o.Publish.Reason != "":
		fmt.Fprintf(&b, " (%s)", o.Publish.Reason)
	}
	b.WriteString("\n")
	for _, r := range o.Publish.Results {
		b.WriteString("  " + resultLine(r) + "\n")
	}
	fmt.Fprintf(&b, "duration: %s", o.Duration().Round(time.Millisecond))
	return b.String()
}

func resultLine(r StageResult) string {
	verdict := "ok"
	switch {
	case r.Skipped:
		verdict = "skipped"
	case r.Cancelled:
		verdict = "cancelled"
	case r.TimedOut:
		verdict = "timed out"
	case !r.Success():
		verdict = fmt.Sprintf("failed (exit %d)", r.ExitCode)
	}
	line := fmt.Sprintf("[%d] %s: %s", r.Index, r.Name, verdict)
	if r.Files > 0 {
		line += fmt.Sprintf(", %d file(s)", r.Files)
	}
	if r.Duration > 0 {
		line += fmt.Sprintf(" in %s", r.Duration.Round(time.Millisecond))
	}
	return line
}

// Persist writes the outcome as JSON plus a text summary into root. Both
// files are written to a temp name and renamed into place.
func (o *Outcome) Persist(root string) error {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("ensure root for report: %w", err)
	}
	serializable := struct {
		*Outcome
		PublishError string `json:"publish_error,omitempty"`
		Error        string `json:"error,omitempty"`
	}{Outcome: o}
	if o.Publish.Err != nil {
		serializable.PublishError = o.Publish.Err.Error()
	}
	if err := o.Err(); err != nil {
		serializable.Error = err.Error()
	}
	jb, err := json.MarshalIndent(serializable, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	if err := writeAtomic(filepath.Join(root, ReportJSON), jb); err != nil {
		return fmt.Errorf("write report json: %w", err)
	}
	if err := writeAtomic(filepath.Join(root, ReportText), []byte(o.Summary()+"\n")); err != nil {
		return fmt.Errorf("write report summary: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
