// Package tempfiles manages job-scoped scratch directories and reaps the
// ones left behind by crashed attempts.
package tempfiles

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ScopePrefix is the name prefix of every job-scoped directory.
const ScopePrefix = "proofreel-job-"

// Purpose names what a scoped path is for.
type Purpose string

const (
	PurposeInput     Purpose = "input"
	PurposeOutput    Purpose = "output"
	PurposeThumbnail Purpose = "thumbnail"
)

// Manager owns the shared temp root.
type Manager struct {
	root   string
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewManager creates a manager rooted at root. An empty root uses the
// system temp directory.
func NewManager(root string, logger *slog.Logger) *Manager {
	if root == "" {
		root = filepath.Join(os.TempDir(), "proofreel")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:   root,
		logger: logger,
		active: make(map[string]struct{}),
	}
}

// Root returns the shared temp root.
func (m *Manager) Root() string {
	return m.root
}

// EnsureRoot creates the temp root if needed.
func (m *Manager) EnsureRoot() error {
	if err := os.MkdirAll(m.root, 0o750); err != nil {
		return fmt.Errorf("creating temp root %s: %w", m.root, err)
	}
	return nil
}

// Scope creates a fresh directory for one attempt of jobID. Two attempts
// of the same job never share a directory.
func (m *Manager) Scope(jobID string) (*Scope, error) {
	if err := m.EnsureRoot(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(m.root, ScopePrefix+sanitize(jobID)+"-")
	if err != nil {
		return nil, fmt.Errorf("creating job temp dir: %w", err)
	}

	m.mu.Lock()
	m.active[dir] = struct{}{}
	m.mu.Unlock()

	return &Scope{manager: m, dir: dir}, nil
}

func (m *Manager) release(dir string) {
	m.mu.Lock()
	delete(m.active, dir)
	m.mu.Unlock()
}

func (m *Manager) isActive(dir string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[dir]
	return ok
}

// ReapOrphans removes job directories older than maxAge by modification
// time. Directories of scopes still open in this process are kept
// regardless of age.
func (m *Manager) ReapOrphans(maxAge time.Duration) (int, error) {
	if _, err := os.Stat(m.root); errors.Is(err, os.ErrNotExist) {
		m.logger.Debug("temp root does not exist, skipping orphan sweep", "path", m.root)
		return 0, nil
	}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("reading temp root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), ScopePrefix) {
			continue
		}

		path := filepath.Join(m.root, entry.Name())
		if m.isActive(path) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			m.logger.Warn("failed to stat temp entry", "path", path, "error", err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("failed to remove orphaned temp entry", "path", path, "error", err)
			continue
		}

		m.logger.Info("removed orphaned temp entry",
			"path", path,
			"age", time.Since(info.ModTime()).Round(time.Second),
		)
		removed++
	}

	return removed, nil
}

// Scope is the scratch space of one job attempt.
type Scope struct {
	manager *Manager
	dir     string

	mu     sync.Mutex
	closed bool
}

// Dir returns the scope directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Path returns a file path inside the scope for purpose. ext may be given
// with or without the leading dot.
func (s *Scope) Path(purpose Purpose, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(s.dir, string(purpose)+ext)
}

// Cleanup removes the scope directory. Errors are logged, not returned,
// so a failed removal never changes the outcome of the job.
func (s *Scope) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	if err := os.RemoveAll(s.dir); err != nil {
		s.manager.logger.Warn("failed to remove job temp dir", "path", s.dir, "error", err)
	}
	s.manager.release(s.dir)
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
