// Package supervisor starts and stops the pipeline: temp space, storage,
// the resource plan, one worker pool per job kind and the periodic sweeps.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/proofreel/internal/allocator"
	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/ffmpeg"
	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/notify"
	"github.com/jmylchreest/proofreel/internal/observability"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/storage"
	"github.com/jmylchreest/proofreel/internal/tempfiles"
	"github.com/jmylchreest/proofreel/internal/worker"
)

// ErrAlreadyStarted is returned by Start on a running supervisor.
var ErrAlreadyStarted = errors.New("supervisor already started")

// Supervisor owns the running pipeline.
type Supervisor struct {
	cfg     *config.Config
	factory *queue.Factory
	logger  *slog.Logger

	// overrides, mostly for tests
	store   storage.Client
	encoder worker.Encoder

	mu       sync.Mutex
	started  bool
	plan     allocator.Plan
	conn     *queue.Connection
	services *Services
	temp     *tempfiles.Manager
	uploads  *tempfiles.UploadSweeper
	pools    []*queue.Pool
	cron     *cron.Cron
}

// New creates a supervisor. Nothing is opened until Start.
func New(cfg *config.Config, factory *queue.Factory, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:     cfg,
		factory: factory,
		logger:  observability.WithComponent(logger, "supervisor"),
	}
}

// WithStorage replaces the storage client built from config.
func (s *Supervisor) WithStorage(store storage.Client) *Supervisor {
	s.store = store
	return s
}

// WithEncoder replaces the ffmpeg encoder built from config.
func (s *Supervisor) WithEncoder(enc worker.Encoder) *Supervisor {
	s.encoder = enc
	return s
}

// Start brings the pipeline up in order: temp root, storage, plan,
// consumers, listeners, initial cleanup, sweep schedule, then consuming.
// On error the pools started so far are closed and the queue connection
// is released.
func (s *Supervisor) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	defer observability.TimedOperationWithError(ctx, s.logger, "pipeline startup", &err)()

	s.temp = tempfiles.NewManager(s.cfg.Temp.Root, s.logger)
	if err := s.temp.EnsureRoot(); err != nil {
		return err
	}

	if s.store == nil {
		s.store, err = storage.New(s.cfg.Storage, s.logger)
		if err != nil {
			return fmt.Errorf("initialising storage: %w", err)
		}
	}

	s.plan = allocator.Resolve(ctx, s.cfg.Allocator.Threads, s.logger)

	if s.encoder == nil {
		bins, err := ffmpeg.FindBinaries(s.cfg.FFmpeg)
		if err != nil {
			return err
		}
		s.encoder = ffmpeg.NewEncoder(bins, s.cfg.Transcode, s.cfg.FFmpeg.ProbeTimeout, s.logger)
	}

	s.conn, err = s.factory.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = s.factory.Close()
		}
	}()
	s.services = NewServices(s.cfg, s.conn, s.logger)
	s.uploads = tempfiles.NewUploadSweeper(s.services.Repos.UploadSessions, s.cfg.Temp.UploadRoot, s.cfg.Temp.UploadSessionMaxAge, s.logger)

	s.pools = s.buildPools()
	for _, p := range s.pools {
		s.attachListeners(p)
	}

	s.initialCleanup(ctx)

	if err := s.schedule(); err != nil {
		return err
	}

	for i, p := range s.pools {
		if err := p.Start(ctx); err != nil {
			s.cron.Stop()
			closeCtx, cancel := s.DrainContext(ctx)
			for _, started := range s.pools[:i] {
				_ = started.Close(closeCtx)
			}
			cancel()
			return fmt.Errorf("starting %s pool: %w", p.Kind(), err)
		}
	}

	s.started = true
	s.logger.Info("pipeline started", slog.Int("pools", len(s.pools)))
	return nil
}

func (s *Supervisor) buildPools() []*queue.Pool {
	q := s.services.Queues
	resolution := models.Resolution(s.cfg.Transcode.PreviewResolution)
	deps := worker.Deps{
		Store:    s.store,
		Encoder:  s.encoder,
		Temp:     s.temp,
		Settings: s.services.Cache,
		Logger:   s.logger,
	}
	dispatcher := notify.NewDispatcher(s.cfg.Notify, s.services.Repos.Destinations, s.services.Cache, s.logger)

	opts := func(concurrency int) queue.PoolOptions {
		return queue.PoolOptions{
			Concurrency:       concurrency,
			PollInterval:      s.cfg.Queue.PollInterval,
			VisibilityTimeout: s.cfg.Queue.VisibilityTimeout,
			HeartbeatInterval: s.cfg.Queue.HeartbeatInterval,
			RetentionInterval: s.cfg.Queue.RetentionSweep,
		}
	}

	return []*queue.Pool{
		q.Transcode.Consume(
			worker.NewTranscodeHandler(deps, s.services.Repos.Videos, resolution, s.plan.ThreadsPerJob).WithEvents(q.Notification),
			opts(s.plan.TranscodeConcurrency)),
		q.CleanPreview.Consume(
			worker.NewCleanPreviewHandler(deps, s.services.Repos.Videos, s.plan.ThreadsPerJob),
			opts(s.plan.CleanPreviewConcurrency)),
		q.Asset.Consume(
			worker.NewAssetHandler(deps, s.services.Repos.Assets),
			opts(s.cfg.Workers.AssetConcurrency)),
		q.Notification.Consume(
			worker.NewNotificationHandler(dispatcher, s.logger),
			opts(s.cfg.Workers.NotificationConcurrency)),
	}
}

func (s *Supervisor) attachListeners(p *queue.Pool) {
	p.OnCompleted(func(_ context.Context, ev queue.Event) {
		s.logger.Info("job completed",
			slog.String("job_id", ev.Job.ID.String()),
			slog.String("job_kind", string(ev.Job.Kind)),
			slog.String("subject_id", ev.Job.SubjectID),
			slog.String("result", ev.Result))
	})
	p.OnFailed(func(ctx context.Context, ev queue.Event) {
		level := slog.LevelWarn
		if ev.Terminal {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "job attempt failed",
			slog.String("job_id", ev.Job.ID.String()),
			slog.String("job_kind", string(ev.Job.Kind)),
			slog.String("subject_id", ev.Job.SubjectID),
			slog.Int("attempt", ev.Job.AttemptCount),
			slog.Bool("terminal", ev.Terminal),
			slog.String("error", ev.Err.Error()))
	})
}

// initialCleanup runs every sweep once before consuming starts. Failures
// are logged; the periodic schedule retries them.
func (s *Supervisor) initialCleanup(ctx context.Context) {
	s.sweepOrphans()
	s.sweepUploads(ctx)
	for _, p := range s.pools {
		if n, err := p.RecoverStale(ctx); err != nil {
			s.logger.Warn("initial stale recovery failed", slog.String("job_kind", string(p.Kind())), slog.String("error", err.Error()))
		} else if n > 0 {
			s.logger.Info("recovered abandoned jobs", slog.String("job_kind", string(p.Kind())), slog.Int("count", n))
		}
		if _, err := p.PurgeExpired(ctx); err != nil {
			s.logger.Warn("initial retention sweep failed", slog.String("job_kind", string(p.Kind())), slog.String("error", err.Error()))
		}
	}
}

func (s *Supervisor) schedule() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := s.cron.AddFunc(s.cfg.Temp.OrphanSweep, s.sweepOrphans); err != nil {
		return fmt.Errorf("scheduling orphan sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Temp.UploadSweep, func() { s.sweepUploads(context.Background()) }); err != nil {
		return fmt.Errorf("scheduling upload sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

func (s *Supervisor) sweepOrphans() {
	n, err := s.temp.ReapOrphans(s.cfg.Temp.OrphanMaxAge)
	if err != nil {
		s.logger.Warn("orphan sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("removed orphaned job directories", slog.Int("count", n))
	}
}

func (s *Supervisor) sweepUploads(ctx context.Context) {
	n, err := s.uploads.Sweep(ctx)
	if err != nil {
		s.logger.Warn("upload sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("removed stale upload sessions", slog.Int("count", n))
	}
}

// Shutdown stops the sweeps, closes every pool concurrently while in-flight
// attempts finish, then closes the queue connection. When ctx expires the
// pools interrupt their running attempts and wait for them to return before
// the connection is closed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false

	var errs []error

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for running sweep: %w", ctx.Err()))
	}

	var g errgroup.Group
	for _, p := range s.pools {
		g.Go(func() error { return p.Close(ctx) })
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	if err := s.factory.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing queue connection: %w", err))
	}

	s.logger.Info("pipeline stopped")
	return errors.Join(errs...)
}

// Plan returns the resource plan. Zero before Start.
func (s *Supervisor) Plan() allocator.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// Connection returns the queue connection. Nil before Start.
func (s *Supervisor) Connection() *queue.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Services returns the enqueue side. Nil before Start.
func (s *Supervisor) Services() *Services {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.services
}

// Pools returns the worker pools. Nil before Start.
func (s *Supervisor) Pools() []*queue.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pools
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// DrainContext returns the context Shutdown should run under once parent
// is done: bounded by queue.drain_timeout, or unbounded when it is zero.
func (s *Supervisor) DrainContext(parent context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(parent)
	if s.cfg.Queue.DrainTimeout > 0 {
		return context.WithTimeout(base, s.cfg.Queue.DrainTimeout)
	}
	return context.WithCancel(base)
}

// Run starts the pipeline, blocks until ctx is cancelled, then drains.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	drainCtx, cancel := s.DrainContext(ctx)
	defer cancel()
	return s.Shutdown(drainCtx)
}
