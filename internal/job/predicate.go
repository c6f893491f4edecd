package job

import (
	"fmt"
	"strings"
)

// Predicate gates a ConditionalBlock on RunContext values. An empty Branch
// matches any branch; a nil PullRequest matches both.
type Predicate struct {
	Branch      string `yaml:"branch,omitempty"`
	PullRequest *bool  `yaml:"pull_request,omitempty"`
}

// PublishPredicate is the default gate: branch master, not a pull request.
func PublishPredicate() Predicate {
	return Predicate{Branch: "master", PullRequest: boolPtr(false)}
}

// Matches reports whether rc satisfies the predicate.
func (p Predicate) Matches(rc RunContext) bool {
	if p.Branch != "" && rc.Branch != p.Branch {
		return false
	}
	if p.PullRequest != nil && rc.PullRequest != *p.PullRequest {
		return false
	}
	return true
}

// String renders the predicate as an expression for logs and plans.
func (p Predicate) String() string {
	var parts []string
	if p.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch == %q", p.Branch))
	}
	if p.PullRequest != nil {
		if *p.PullRequest {
			parts = append(parts, "pull_request")
		} else {
			parts = append(parts, "!pull_request")
		}
	}
	if len(parts) == 0 {
		return "always"
	}
	return strings.Join(parts, " && ")
}

func (p Predicate) clone() Predicate {
	out := Predicate{Branch: p.Branch}
	if p.PullRequest != nil {
		out.PullRequest = boolPtr(*p.PullRequest)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
