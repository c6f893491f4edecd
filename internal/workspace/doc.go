// Package workspace manages the per-run directory that holds stage logs and
// run reports, supporting both ephemeral and persistent modes.
//
// Ephemeral mode creates a directory named after the run (e.g.
// docpipe-<run id>) under the system temp dir and removes it on Cleanup.
//
// Persistent mode uses <base>/<run id> under a caller-chosen report directory
// and keeps it after the run so logs and reports can be inspected or archived
// as CI artifacts.
package workspace
