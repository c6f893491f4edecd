package job

import (
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// Secret holds a credential. Every rendering path except Reveal hides the value.
type Secret string

// Reveal returns the raw credential. Call it only at the point of use.
func (s Secret) Reveal() string { return string(s) }

// IsSet reports whether a credential is present.
func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(s.String()) }

// MarshalText keeps the credential out of JSON, YAML and similar encoders.
func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// RunContext is the externally supplied environment for one invocation.
type RunContext struct {
	Branch      string `json:"branch"`
	PullRequest bool   `json:"pull_request"`
	Token       Secret `json:"token,omitempty"`
}

// LogValue implements slog.LogValuer.
func (rc RunContext) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("branch", rc.Branch),
		slog.Bool("pull_request", rc.PullRequest),
		slog.Bool("token_set", rc.Token.IsSet()),
	)
}

// ParsePullRequest interprets CI pull-request markers. Travis reports "false"
// for branch builds and the PR number otherwise.
func ParsePullRequest(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "no":
		return false
	default:
		return true
	}
}
