package eventstore

import (
	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.EventStoreError("could not open run history database").Build()

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = errors.EventStoreError("failed to initialize run history schema").Build()

	// ErrEventAppendFailed indicates appending an event failed.
	ErrEventAppendFailed = errors.EventStoreError("failed to append event to store").Build()

	// ErrRunRecordFailed indicates upserting a run row failed.
	ErrRunRecordFailed = errors.EventStoreError("failed to record run").Build()

	// ErrQueryFailed indicates querying runs or events failed.
	ErrQueryFailed = errors.EventStoreError("failed to query run history").Build()

	// ErrRunNotFound indicates no run row exists for the requested id.
	ErrRunNotFound = errors.NewError(errors.CategoryNotFound, "run not found").Build()
)
