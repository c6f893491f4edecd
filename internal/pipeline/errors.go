package pipeline

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrPublishPredicateNotMet is the skip reason recorded when the RunContext
	// does not satisfy a publish block's predicate. It is not a failure.
	ErrPublishPredicateNotMet = stderrors.New("publish predicate not met")

	// ErrCancelled is reported when the run context ends before the main phase completes.
	ErrCancelled = stderrors.New("run cancelled")
)

// StageFailure describes the main-phase stage that halted the run.
type StageFailure struct {
	Stage    string
	Index    int
	ExitCode int
	TimedOut bool
	Err      error
}

func (e *StageFailure) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("stage %q (index %d) timed out", e.Stage, e.Index)
	case e.Err != nil:
		return fmt.Sprintf("stage %q (index %d) failed: %v", e.Stage, e.Index, e.Err)
	default:
		return fmt.Sprintf("stage %q (index %d) failed with exit code %d", e.Stage, e.Index, e.ExitCode)
	}
}

func (e *StageFailure) Unwrap() error { return e.Err }

// PublishStepFailure describes the publish step that halted the publish phase.
type PublishStepFailure struct {
	Step     string
	Index    int
	ExitCode int
	Err      error
}

func (e *PublishStepFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("publish step %q (index %d) failed: %v", e.Step, e.Index, e.Err)
	}
	return fmt.Sprintf("publish step %q (index %d) failed with exit code %d", e.Step, e.Index, e.ExitCode)
}

func (e *PublishStepFailure) Unwrap() error { return e.Err }
