// Package testutil provides shared fixtures for package tests: a migrated
// in-memory database and sample media bodies that sniff as the expected
// content types.
package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/database"
	"github.com/jmylchreest/proofreel/internal/database/migrations"
	"github.com/jmylchreest/proofreel/internal/observability"
)

// NewDB opens a private in-memory sqlite database with every migration
// applied. It is closed when the test ends.
func NewDB(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.New(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"}, observability.Discard(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator := migrations.NewMigrator(db.DB, observability.Discard(), migrations.AllMigrations()...)
	require.NoError(t, migrator.Up(context.Background()))
	return db
}

// NewFileDB is NewDB backed by a file in a temporary directory, with the
// production connection pool. Use it where connections must share one
// database, such as concurrent claims.
func NewFileDB(t testing.TB) *database.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "proofreel.db")
	db, err := database.New(config.DatabaseConfig{Driver: "sqlite", DSN: dsn, LogLevel: "silent"}, observability.Discard(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator := migrations.NewMigrator(db.DB, observability.Discard(), migrations.AllMigrations()...)
	require.NoError(t, migrator.Up(context.Background()))
	return db
}

// PNG returns a body that sniffs as image/png.
func PNG() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
}

// PDF returns a body that sniffs as application/pdf.
func PDF() []byte {
	return []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")
}

// Opaque returns n zero bytes. Content sniffing gives up on it, so the
// category falls back to the file extension.
func Opaque(n int) []byte {
	return make([]byte, n)
}

// Generator produces fictional project and video names for fixtures.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a Generator with a fixed seed so fixtures are stable
// across runs.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

var (
	productions = []string{"Harbour Lights", "Northbound", "Glasswork", "Low Tide", "Paper Moons"}
	cuts        = []string{"rough cut", "fine cut", "picture lock", "colour pass", "final mix"}
)

// ProjectID returns a project identifier such as "proj-0042".
func (g *Generator) ProjectID() string {
	return fmt.Sprintf("proj-%04d", g.rng.Intn(10000))
}

// VideoTitle returns a title such as "Northbound, fine cut v3".
func (g *Generator) VideoTitle() string {
	return fmt.Sprintf("%s, %s v%d",
		productions[g.rng.Intn(len(productions))],
		cuts[g.rng.Intn(len(cuts))],
		g.rng.Intn(9)+1,
	)
}

// SourcePath returns an upload key for a new source file with extension ext.
func (g *Generator) SourcePath(projectID, ext string) string {
	return fmt.Sprintf("uploads/%s/%08x%s", projectID, g.rng.Uint32(), ext)
}
