package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid job file").
			WithSeverity(SeverityFatal).
			WithContext("file", "docpipe.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "invalid job file" {
			t.Errorf("expected message 'invalid job file', got %s", err.Message())
		}

		file, exists := err.Context().GetString("file")
		if !exists || file != "docpipe.yaml" {
			t.Errorf("expected context file=docpipe.yaml, got %v", file)
		}
	})

	t.Run("Error detection", func(t *testing.T) {
		err := ConfigError("test error").Build()

		if !IsClassified(err) {
			t.Error("expected error to be classified")
		}
		if !HasCategory(err, CategoryConfig) {
			t.Error("expected error to have config category")
		}
		if err.CanRetry() {
			t.Error("expected config error to not be retryable")
		}
		if !err.IsFatal() {
			t.Error("expected config error to be fatal")
		}
	})

	t.Run("Detection through wrapping", func(t *testing.T) {
		inner := StageError("stage build failed").Build()
		wrapped := fmt.Errorf("run: %w", inner)

		if !HasCategory(wrapped, CategoryStage) {
			t.Error("expected wrapped error to keep stage category")
		}
		if GetCategory(errors.New("plain")) != CategoryInternal {
			t.Error("expected plain error to default to internal category")
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	originalErr := errors.New("connection reset")
	err := WrapError(originalErr, CategoryNetwork, "push failed").
		Warning().
		Retryable().
		WithContext("remote", "origin").
		WithCategory(CategoryGit).
		Build()

	if err.Category() != CategoryGit {
		t.Errorf("expected category %s, got %s", CategoryGit, err.Category())
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("expected severity %s, got %s", SeverityWarning, err.Severity())
	}
	if err.RetryStrategy() != RetryBackoff {
		t.Errorf("expected retry strategy %s, got %s", RetryBackoff, err.RetryStrategy())
	}
	if !errors.Is(err, originalErr) {
		t.Error("expected error to wrap original error")
	}
	if !err.CanRetry() {
		t.Error("expected backoff error to be retryable")
	}
	if got := err.Error(); got != "[git:warning] push failed: connection reset" {
		t.Errorf("unexpected error string %q", got)
	}
}

func TestErrorContextMerge(t *testing.T) {
	a := ErrorContext{"a": 1, "shared": "left"}
	b := ErrorContext{"b": 2, "shared": "right"}

	merged := a.Merge(b)
	if v, _ := merged.GetString("shared"); v != "right" {
		t.Errorf("expected right side to win, got %q", v)
	}
	if _, ok := merged.Get("a"); !ok {
		t.Error("expected key a to survive merge")
	}
	var nilCtx ErrorContext
	if got := nilCtx.Merge(b); len(got) != 2 {
		t.Errorf("expected nil merge to return other, got %v", got)
	}
}
