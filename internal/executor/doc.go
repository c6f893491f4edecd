// Package executor runs stage commands as external processes.
//
// A non-zero exit status is reported in Result, not as an error: the runner
// decides what a failed command means. Errors are reserved for processes that
// could not be started and for cancellation.
package executor
