package eventstore

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

const testRunID = "run-123"

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	payload := []byte(`{"exit_code": 0}`)

	if err := store.Append(ctx, testRunID, TypeStageCompleted, "build", payload); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.GetByRunID(ctx, testRunID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.RunID() != testRunID {
		t.Errorf("expected run_id %s, got %s", testRunID, event.RunID())
	}
	if event.Type() != TypeStageCompleted {
		t.Errorf("expected event_type %s, got %s", TypeStageCompleted, event.Type())
	}
	if event.Stage() != "build" {
		t.Errorf("expected stage build, got %s", event.Stage())
	}
	if !bytes.Equal(event.Payload(), payload) {
		t.Errorf("expected payload %s, got %s", payload, event.Payload())
	}
}

func TestEventStoreMultipleRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	_ = store.Append(ctx, "run-1", TypeRunStarted, "", nil)
	_ = store.Append(ctx, "run-2", TypeRunStarted, "", nil)
	_ = store.Append(ctx, "run-1", TypeRunCompleted, "", nil)

	events, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, TypeRunStarted, events[0].Type())
	require.Equal(t, TypeRunCompleted, events[1].Type())
	require.Equal(t, []byte("{}"), events[0].Payload())

	events, err = store.GetByRunID(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestRecordRunUpsertsSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	start := time.Now().Add(-time.Minute).Truncate(time.Millisecond)

	require.NoError(t, store.RecordRun(ctx, RunRecord{
		RunID: testRunID, Branch: "master", Status: "running", StartedAt: start,
	}))
	running, err := store.GetRun(ctx, testRunID)
	require.NoError(t, err)
	require.Equal(t, "running", running.Status)
	require.Nil(t, running.FinishedAt)
	require.Zero(t, running.Duration())

	end := start.Add(42 * time.Second)
	require.NoError(t, store.RecordRun(ctx, RunRecord{
		RunID: testRunID, Branch: "master", Status: "failed", FailedStage: "test",
		PublishStatus: "not_run", StartedAt: start, FinishedAt: &end,
	}))

	done, err := store.GetRun(ctx, testRunID)
	require.NoError(t, err)
	require.Equal(t, "failed", done.Status)
	require.Equal(t, "test", done.FailedStage)
	require.Equal(t, "not_run", done.PublishStatus)
	require.Equal(t, 42*time.Second, done.Duration())
	require.True(t, done.StartedAt.Equal(start))
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.RecordRun(ctx, RunRecord{
			RunID: id, Branch: "master", PullRequest: id == "b", Status: "succeeded",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "c", all[0].RunID)
	require.Equal(t, "a", all[2].RunID)
	require.True(t, all[1].PullRequest)

	limited, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun(t.Context(), "missing")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRunNotFound)
	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, errors.CategoryNotFound, ce.Category())
}

func TestSQLiteStorePersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordRun(t.Context(), RunRecord{RunID: testRunID, Branch: "dev", Status: "succeeded", StartedAt: time.Now()}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	runs, err := reopened.ListRuns(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "dev", runs[0].Branch)
}
