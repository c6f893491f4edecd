// Package errors provides foundational, type-safe error primitives used across docpipe.
//
// Key features:
//   - ErrorCategory: broad classification (config, stage, publish, git, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: advisory retry behavior for callers
//   - ClassifiedError: structured error with category, severity, and context
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLIErrorAdapter: exit code mapping and user-facing presentation
//
// Example usage:
//
//	err := errors.GitError("push failed").
//		WithCause(pushErr).
//		WithContext("branch", "gh-pages").
//		Build()
package errors
