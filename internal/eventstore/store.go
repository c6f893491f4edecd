package eventstore

import (
	"context"
)

// Store defines the interface for persisting and retrieving run history.
type Store interface {
	// RecordRun inserts or updates the summary row of a run.
	RecordRun(ctx context.Context, run RunRecord) error

	// Append adds a new event to the store.
	Append(ctx context.Context, runID, eventType, stage string, payload []byte) error

	// GetByRunID retrieves all events for a specific run in insertion order.
	GetByRunID(ctx context.Context, runID string) ([]Event, error)

	// GetRun retrieves the summary row of a run.
	GetRun(ctx context.Context, runID string) (*RunRecord, error)

	// ListRuns returns the newest runs first. A limit <= 0 returns all runs.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Close closes the store and releases resources.
	Close() error
}
