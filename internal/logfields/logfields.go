package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyPhase      = "phase"
	KeyStage      = "stage"
	KeyStageIndex = "stage_index"
	KeyState      = "state"
	KeyExitCode   = "exit_code"
	KeyCommand    = "command"
	KeyFile       = "file"
	KeyDurationMS = "duration_ms"
	KeyBranch     = "branch"
	KeyPullReq    = "pull_request"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyCommit     = "commit"
	KeyStatus     = "status"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Phase(p string) slog.Attr        { return slog.String(KeyPhase, p) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func StageIndex(i int) slog.Attr      { return slog.Int(KeyStageIndex, i) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func PullRequest(pr bool) slog.Attr   { return slog.Bool(KeyPullReq, pr) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Commit(c string) slog.Attr       { return slog.String(KeyCommit, c) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
