package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/database"
	"github.com/jmylchreest/proofreel/internal/database/migrations"
	"github.com/jmylchreest/proofreel/internal/repository"
)

var (
	// ErrBuildPhase is returned when a connection is requested while the
	// process is running as part of a build.
	ErrBuildPhase = errors.New("queue connection refused during build phase")
	// ErrInvalidPayload wraps payload validation failures.
	ErrInvalidPayload = errors.New("invalid job payload")
	// ErrKindMismatch is returned when a consumer receives a job of another kind.
	ErrKindMismatch = errors.New("job kind mismatch")
	// ErrPoolStarted is returned by Start on a pool that is already running.
	ErrPoolStarted = errors.New("pool already started")
)

// Connection is the process-wide handle on the queue store.
type Connection struct {
	db        *database.DB
	jobs      repository.JobRepository
	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps an open database. Used directly by tests; the
// process goes through Factory.
func NewConnection(db *database.DB) *Connection {
	return &Connection{db: db, jobs: repository.NewJobRepository(db.DB)}
}

// DB returns the underlying database.
func (c *Connection) DB() *database.DB {
	return c.db
}

// Jobs returns the job repository.
func (c *Connection) Jobs() repository.JobRepository {
	return c.jobs
}

// Close closes the database. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.db.Close()
	})
	return c.closeErr
}

// Factory opens the queue connection at most once per process. The first
// outcome, success or failure, is returned to every later caller.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger
	open   func(ctx context.Context) (*Connection, error)

	mu     sync.Mutex
	opened bool
	conn   *Connection
	err    error
}

// NewFactory creates a factory for cfg. Nothing is opened until Connect.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{cfg: cfg, logger: logger}
	f.open = f.openDatabase
	return f
}

// Connect returns the shared connection, opening it and applying pending
// migrations on first use.
func (f *Factory) Connect(ctx context.Context) (*Connection, error) {
	if f.cfg.BuildPhase {
		return nil, ErrBuildPhase
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.opened {
		f.conn, f.err = f.open(ctx)
		f.opened = true
	}
	return f.conn, f.err
}

// Close closes the connection if one was opened.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}

func (f *Factory) openDatabase(ctx context.Context) (*Connection, error) {
	db, err := database.New(f.cfg.Database, f.logger, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to queue store: %w", err)
	}

	migrator := migrations.NewMigrator(db.DB, f.logger, migrations.AllMigrations()...)
	if err := migrator.Up(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	f.logger.Info("queue store connected", slog.String("driver", db.Driver()))
	return NewConnection(db), nil
}
