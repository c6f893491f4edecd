package logfields

import (
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"RunID", KeyRunID, "r-1", RunID("r-1")},
		{"Phase", KeyPhase, "main", Phase("main")},
		{"Stage", KeyStage, "build", Stage("build")},
		{"State", KeyState, "Building", State("Building")},
		{"Command", KeyCommand, "cargo test", Command("cargo test")},
		{"File", KeyFile, "docs/a.md", File("docs/a.md")},
		{"Branch", KeyBranch, "master", Branch("master")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"URL", KeyURL, "https://example", URL("https://example")},
		{"Commit", KeyCommit, "abc123", Commit("abc123")},
		{"Status", KeyStatus, "succeeded", Status("succeeded")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

// TestNumericHelpers verifies keys for numeric, bool & float helpers.
func TestNumericHelpers(t *testing.T) {
	if v := StageIndex(3); v.Key != KeyStageIndex || v.Value.Int64() != 3 {
		t.Fatalf("StageIndex mismatch: %v", v)
	}
	if v := ExitCode(1); v.Key != KeyExitCode || v.Value.Int64() != 1 {
		t.Fatalf("ExitCode mismatch: %v", v)
	}
	if v := DurationMS(12.5); v.Key != KeyDurationMS {
		t.Fatalf("DurationMS key mismatch: %s", v.Key)
	}
	if v := PullRequest(true); v.Key != KeyPullReq || !v.Value.Bool() {
		t.Fatalf("PullRequest mismatch: %v", v)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError {
		t.Fatalf("Error key mismatch: %s", attr.Key)
	}
	if attr.Value.String() != "" {
		t.Fatalf("Expected empty error string, got %s", attr.Value.String())
	}
	attr = Error(errTest{})
	if attr.Value.String() != "err-test" {
		t.Fatalf("Expected 'err-test', got %s", attr.Value.String())
	}
}

type errTest struct{}

func (e errTest) Error() string { return "err-test" }
