package tempfiles

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestScope(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "tmp"), newTestLogger())

	a, err := m.Scope("01JOB")
	require.NoError(t, err)
	b, err := m.Scope("01JOB")
	require.NoError(t, err)

	assert.NotEqual(t, a.Dir(), b.Dir(), "attempts never share a directory")
	assert.True(t, strings.HasPrefix(filepath.Base(a.Dir()), "proofreel-job-01JOB-"))

	in := a.Path(PurposeInput, "mov")
	assert.Equal(t, filepath.Join(a.Dir(), "input.mov"), in)
	assert.Equal(t, filepath.Join(a.Dir(), "thumbnail.jpg"), a.Path(PurposeThumbnail, ".jpg"))
	require.NoError(t, os.WriteFile(in, []byte("data"), 0o600))

	a.Cleanup()
	a.Cleanup()
	_, err = os.Stat(a.Dir())
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(b.Dir())
	assert.NoError(t, err)
	b.Cleanup()
}

func TestScope_SanitizesJobID(t *testing.T) {
	m := NewManager(t.TempDir(), newTestLogger())
	s, err := m.Scope("../../etc")
	require.NoError(t, err)
	defer s.Cleanup()

	assert.Equal(t, m.Root(), filepath.Dir(s.Dir()))
}

func TestReapOrphans(t *testing.T) {
	t.Run("removes old job directories", func(t *testing.T) {
		root := t.TempDir()
		m := NewManager(root, newTestLogger())

		old := filepath.Join(root, "proofreel-job-01OLD-123")
		require.NoError(t, os.Mkdir(old, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(old, "input.mov"), []byte("x"), 0o600))
		age(t, old, 4*time.Hour)

		stray := filepath.Join(root, "proofreel-job-01FILE-9.part")
		require.NoError(t, os.WriteFile(stray, []byte("x"), 0o600))
		age(t, stray, 4*time.Hour)

		count, err := m.ReapOrphans(3 * time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.NoDirExists(t, old)
		assert.NoFileExists(t, stray)
	})

	t.Run("preserves recent and foreign entries", func(t *testing.T) {
		root := t.TempDir()
		m := NewManager(root, newTestLogger())

		recent := filepath.Join(root, "proofreel-job-01NEW-1")
		require.NoError(t, os.Mkdir(recent, 0o750))
		age(t, recent, 30*time.Minute)

		foreign := filepath.Join(root, "other-tool-cache")
		require.NoError(t, os.Mkdir(foreign, 0o750))
		age(t, foreign, 48*time.Hour)

		count, err := m.ReapOrphans(3 * time.Hour)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.DirExists(t, recent)
		assert.DirExists(t, foreign)
	})

	t.Run("skips active scopes", func(t *testing.T) {
		m := NewManager(t.TempDir(), newTestLogger())
		s, err := m.Scope("01LONG")
		require.NoError(t, err)
		age(t, s.Dir(), 10*time.Hour)

		count, err := m.ReapOrphans(time.Hour)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.DirExists(t, s.Dir())

		s.Cleanup()
	})

	t.Run("missing root is not an error", func(t *testing.T) {
		m := NewManager(filepath.Join(t.TempDir(), "absent"), newTestLogger())
		count, err := m.ReapOrphans(time.Hour)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

type fakeSessions struct {
	sessions []*models.UploadSession
	deleted  []string
	failOn   string
}

func (f *fakeSessions) FindInactive(_ context.Context, before time.Time) ([]*models.UploadSession, error) {
	var out []*models.UploadSession
	for _, s := range f.sessions {
		if s.LastActivityAt.Before(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	if id == f.failOn {
		return errors.New("db locked")
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func TestUploadSweeper_Sweep(t *testing.T) {
	root := t.TempDir()
	staleDir := filepath.Join(root, "s1")
	freshDir := filepath.Join(root, "s2")
	for _, d := range []string{staleDir, freshDir} {
		require.NoError(t, os.Mkdir(d, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(d, "chunk-0"), []byte("x"), 0o600))
	}

	sessions := &fakeSessions{sessions: []*models.UploadSession{
		{Record: models.Record{ID: "stale"}, ChunkDir: "s1", LastActivityAt: time.Now().Add(-30 * time.Hour)},
		{Record: models.Record{ID: "fresh"}, ChunkDir: freshDir, LastActivityAt: time.Now().Add(-time.Hour)},
		{Record: models.Record{ID: "escape"}, ChunkDir: "../outside", LastActivityAt: time.Now().Add(-48 * time.Hour)},
	}}

	sweeper := NewUploadSweeper(sessions, root, 24*time.Hour, newTestLogger())
	removed, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, removed)
	assert.ElementsMatch(t, []string{"stale", "escape"}, sessions.deleted)
	assert.NoDirExists(t, staleDir)
	assert.DirExists(t, freshDir)
}

func TestUploadSweeper_KeepsSessionWhenDeleteFails(t *testing.T) {
	sessions := &fakeSessions{
		failOn: "stale",
		sessions: []*models.UploadSession{
			{Record: models.Record{ID: "stale"}, LastActivityAt: time.Now().Add(-30 * time.Hour)},
		},
	}
	sweeper := NewUploadSweeper(sessions, t.TempDir(), 24*time.Hour, newTestLogger())

	removed, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
