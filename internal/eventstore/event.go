package eventstore

import "time"

// Event types written by the pipeline history observer.
const (
	TypeRunStarted     = "run.started"
	TypeStateChanged   = "state.changed"
	TypeStageStarted   = "stage.started"
	TypeStageCompleted = "stage.completed"
	TypeRunCompleted   = "run.completed"
)

// Event represents one lifecycle event of a run.
type Event interface {
	ID() int64
	RunID() string
	Type() string
	Stage() string
	Timestamp() time.Time
	Payload() []byte
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID        int64
	EventRunID     string
	EventType      string
	EventStage     string
	EventTimestamp time.Time
	EventPayload   []byte
}

func (e *BaseEvent) ID() int64            { return e.EventID }
func (e *BaseEvent) RunID() string        { return e.EventRunID }
func (e *BaseEvent) Type() string         { return e.EventType }
func (e *BaseEvent) Stage() string        { return e.EventStage }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte      { return e.EventPayload }

// RunRecord is the summary row of one run.
type RunRecord struct {
	RunID         string     `json:"run_id"`
	Branch        string     `json:"branch"`
	PullRequest   bool       `json:"pull_request"`
	Status        string     `json:"status"`
	PublishStatus string     `json:"publish_status,omitempty"`
	FailedStage   string     `json:"failed_stage,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Duration returns the wall time of a finished run, or zero while it is running.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
