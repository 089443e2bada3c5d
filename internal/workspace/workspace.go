package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/session"
)

// Manager owns a single scratch directory.
type Manager struct {
	dir     string
	session *session.Session
	res     *session.Resource
}

// NewManager creates a manager for a fresh directory under baseDir/verifybuild.
// An empty baseDir means the system temp directory.
func NewManager(baseDir string, sess *session.Session) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{
		dir:     filepath.Join(baseDir, "verifybuild", uuid.NewString()),
		session: sess,
	}
}

// NewHiddenManager creates a manager for a hidden directory directly under parent.
func NewHiddenManager(parent string, sess *session.Session) *Manager {
	return &Manager{
		dir:     filepath.Join(parent, "."+uuid.NewString()),
		session: sess,
	}
}

// Create makes the directory and registers it for teardown.
func (m *Manager) Create() error {
	if m.res != nil {
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	dir := m.dir
	release := func(context.Context) error {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to cleanup workspace: %w", err)
		}
		slog.Info("Removed workspace", logfields.Path(dir))
		return nil
	}
	if m.session != nil {
		m.res = m.session.Register(session.KindTempDir, dir, release)
	} else {
		m.res = session.Standalone(session.KindTempDir, dir, release)
	}
	slog.Debug("Created workspace", logfields.Path(dir))
	return nil
}

// Path returns the workspace directory.
func (m *Manager) Path() string { return m.dir }

// CreateSubdir creates a subdirectory within the workspace.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.res == nil {
		return "", fmt.Errorf("workspace not created")
	}
	subdir := filepath.Join(m.dir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}
	return subdir, nil
}

// Cleanup removes the directory. It is safe to call more than once and after
// the session has already torn the directory down.
func (m *Manager) Cleanup(ctx context.Context) error {
	if m.res == nil {
		return nil
	}
	return m.res.Release(ctx)
}
