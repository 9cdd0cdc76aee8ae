package tempfiles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/proofreel/internal/models"
)

// UploadSessions is the subset of the upload session repository the
// sweeper needs.
type UploadSessions interface {
	FindInactive(ctx context.Context, before time.Time) ([]*models.UploadSession, error)
	Delete(ctx context.Context, id string) error
}

// UploadSweeper removes chunked upload sessions that stopped receiving data.
type UploadSweeper struct {
	sessions UploadSessions
	root     string
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewUploadSweeper creates a sweeper for sessions whose chunk directories
// live under root.
func NewUploadSweeper(sessions UploadSessions, root string, maxAge time.Duration, logger *slog.Logger) *UploadSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadSweeper{sessions: sessions, root: root, maxAge: maxAge, logger: logger}
}

// Sweep deletes every session idle for longer than maxAge along with its
// chunk directory. A session whose directory cannot be removed is kept
// for the next sweep.
func (u *UploadSweeper) Sweep(ctx context.Context) (int, error) {
	sessions, err := u.sessions.FindInactive(ctx, time.Now().Add(-u.maxAge))
	if err != nil {
		return 0, fmt.Errorf("finding inactive upload sessions: %w", err)
	}

	var removed int
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		if dir, ok := u.chunkDir(s); ok {
			if err := os.RemoveAll(dir); err != nil {
				u.logger.Warn("failed to remove upload chunks", "session_id", s.ID, "path", dir, "error", err)
				continue
			}
		} else if s.ChunkDir != "" {
			u.logger.Warn("upload chunk dir outside upload root, leaving files", "session_id", s.ID, "path", s.ChunkDir)
		}

		if err := u.sessions.Delete(ctx, s.ID); err != nil {
			u.logger.Warn("failed to delete upload session", "session_id", s.ID, "error", err)
			continue
		}

		u.logger.Info("removed stale upload session",
			"session_id", s.ID,
			"idle", time.Since(s.LastActivityAt).Round(time.Second),
		)
		removed++
	}
	return removed, nil
}

// chunkDir resolves the session's chunk directory inside the upload root.
// Paths escaping the root are refused.
func (u *UploadSweeper) chunkDir(s *models.UploadSession) (string, bool) {
	if s.ChunkDir == "" {
		return "", false
	}
	root, err := filepath.Abs(u.root)
	if err != nil {
		return "", false
	}
	dir := s.ChunkDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	dir = filepath.Clean(dir)
	if dir == root || !strings.HasPrefix(dir, root+string(filepath.Separator)) {
		return "", false
	}
	return dir, true
}
