// Package eventstore keeps docpipe run history in SQLite.
//
// Two tables are maintained: runs holds one summary row per invocation and is
// upserted as the run progresses; events holds the ordered lifecycle events of
// each run (state changes, stage start and completion).
package eventstore
