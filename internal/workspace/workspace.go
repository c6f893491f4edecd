package workspace

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

const logsSubdir = "logs"

// Manager handles the run directory (both temporary and persistent).
type Manager struct {
	baseDir    string
	runID      string
	dir        string
	persistent bool // If true, keep the directory on Cleanup
}

// NewManager creates a workspace manager with an ephemeral run directory.
func NewManager(baseDir, runID string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir, runID: runID}
}

// NewPersistentManager creates a workspace manager whose run directory
// (baseDir/runID) survives Cleanup.
func NewPersistentManager(baseDir, runID string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{
		baseDir:    baseDir,
		runID:      runID,
		dir:        filepath.Join(baseDir, runID),
		persistent: true,
	}
}

// Create creates the run directory and its logs subdirectory.
func (m *Manager) Create() error {
	if !m.persistent {
		m.dir = filepath.Join(m.baseDir, "docpipe-"+m.runID)
	}
	if err := os.MkdirAll(filepath.Join(m.dir, logsSubdir), 0o750); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	slog.Debug("Created run workspace", logfields.Path(m.dir), slog.Bool("persistent", m.persistent))
	return nil
}

// GetPath returns the path to the run directory.
func (m *Manager) GetPath() string {
	return m.dir
}

// Persistent reports whether the directory is kept after the run.
func (m *Manager) Persistent() bool {
	return m.persistent
}

// Cleanup removes an ephemeral run directory. Persistent directories are kept.
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}
	if m.persistent {
		slog.Debug("Keeping persistent workspace", logfields.Path(m.dir))
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Debug("Cleaned up workspace", logfields.Path(m.dir))
	m.dir = ""
	return nil
}

// CreateSubdir creates a subdirectory within the run directory.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.dir == "" {
		return "", fmt.Errorf("workspace not created")
	}

	subdir := filepath.Join(m.dir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}

	return subdir, nil
}

// StageLogPath returns the log file path for a stage, e.g. logs/main-03-test.log.
func (m *Manager) StageLogPath(phase string, index int, name string) string {
	file := fmt.Sprintf("%s-%02d-%s.log", phase, index, sanitize(name))
	return filepath.Join(m.dir, logsSubdir, file)
}

// OpenStageLog creates (or truncates) the log file for a stage.
func (m *Manager) OpenStageLog(phase string, index int, name string) (io.WriteCloser, error) {
	if m.dir == "" {
		return nil, fmt.Errorf("workspace not created")
	}
	path := m.StageLogPath(phase, index, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open stage log: %w", err)
	}
	return f, nil
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "stage"
	}
	return b.String()
}
