package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/observability"
	"github.com/jmylchreest/proofreel/internal/repository"
)

// PoolOptions configures a worker pool.
type PoolOptions struct {
	// Concurrency is the number of attempts run at once.
	// Default: 1
	Concurrency int

	// PollInterval is how long an idle worker waits before polling again.
	// Default: 1 second
	PollInterval time.Duration

	// VisibilityTimeout is how long a lock may go without a heartbeat
	// before the attempt is considered abandoned.
	// Default: 5 minutes
	VisibilityTimeout time.Duration

	// HeartbeatInterval is how often a running attempt refreshes its lock.
	// Default: 30 seconds
	HeartbeatInterval time.Duration

	// RetentionInterval is how often finished jobs past their retention
	// window are deleted.
	// Default: 5 minutes
	RetentionInterval time.Duration

	// BackoffUnit is the length of one second of stored retry backoff.
	// Shortening it compresses every retry delay by the same factor.
	// Default: 1 second
	BackoffUnit time.Duration

	// WorkerID prefixes the lock owner of each worker.
	// Default: kind plus a random suffix
	WorkerID string

	Logger *slog.Logger
}

func (o PoolOptions) withDefaults(kind models.JobKind) PoolOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 5 * time.Minute
	}
	if o.HeartbeatInterval <= 0 || o.HeartbeatInterval >= o.VisibilityTimeout {
		o.HeartbeatInterval = o.VisibilityTimeout / 3
	}
	if o.RetentionInterval <= 0 {
		o.RetentionInterval = 5 * time.Minute
	}
	if o.BackoffUnit <= 0 {
		o.BackoffUnit = time.Second
	}
	if o.WorkerID == "" {
		o.WorkerID = fmt.Sprintf("%s-%s", kind, uuid.NewString()[:8])
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Event describes the outcome of one attempt.
type Event struct {
	Job    *models.Job
	Result string
	Err    error
	// Terminal is set on failures that spent the attempt budget.
	Terminal bool
}

// Listener observes attempt outcomes. Listeners run on the worker goroutine
// and must not block.
type Listener func(ctx context.Context, ev Event)

type runFunc func(ctx context.Context, d *Delivery) (string, error)
type terminalFunc func(ctx context.Context, job *models.Job, cause error)

// progressFlushInterval bounds how often progress alone triggers a write.
const progressFlushInterval = time.Second

// abortGrace bounds how long Close waits for cancelled attempts to return.
const abortGrace = 30 * time.Second

// Pool runs handler attempts for one job kind.
type Pool struct {
	mu sync.Mutex

	jobs     repository.JobRepository
	kind     models.JobKind
	policy   Policy
	run      runFunc
	terminal terminalFunc
	opts     PoolOptions
	logger   *slog.Logger

	onCompleted []Listener
	onFailed    []Listener

	// pollCtx stops claiming. execCtx keeps in-flight attempts alive
	// through shutdown until abort cancels it. storeCtx records outcomes
	// and is never cancelled.
	pollCtx  context.Context
	cancel   context.CancelFunc
	execCtx  context.Context
	abort    context.CancelFunc
	storeCtx context.Context
	wg       sync.WaitGroup
	started  bool
}

func newPool(jobs repository.JobRepository, kind models.JobKind, policy Policy, run runFunc, terminal terminalFunc, opts PoolOptions) *Pool {
	opts = opts.withDefaults(kind)
	return &Pool{
		jobs:     jobs,
		kind:     kind,
		policy:   policy,
		run:      run,
		terminal: terminal,
		opts:     opts,
		logger:   opts.Logger.With(slog.String("worker_id", opts.WorkerID)),
	}
}

// Kind returns the job kind the pool consumes.
func (p *Pool) Kind() models.JobKind {
	return p.kind
}

// Concurrency returns the number of workers.
func (p *Pool) Concurrency() int {
	return p.opts.Concurrency
}

// OnCompleted registers a listener for successful attempts. Register
// before Start.
func (p *Pool) OnCompleted(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCompleted = append(p.onCompleted, l)
}

// OnFailed registers a listener for failed attempts, terminal or not.
// Register before Start.
func (p *Pool) OnFailed(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFailed = append(p.onFailed, l)
}

// Start launches the workers and the maintenance loops.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolStarted
	}
	p.started = true
	p.pollCtx, p.cancel = context.WithCancel(ctx)
	p.storeCtx = context.WithoutCancel(ctx)
	p.execCtx, p.abort = context.WithCancel(p.storeCtx)

	for i := range p.opts.Concurrency {
		workerID := fmt.Sprintf("%s-%d", p.opts.WorkerID, i)
		p.wg.Add(1)
		go p.worker(workerID)
	}

	p.wg.Add(2)
	go p.maintain(p.opts.VisibilityTimeout/2, p.recoverStale)
	go p.maintain(p.opts.RetentionInterval, p.purgeExpired)

	p.logger.Info("worker pool started",
		slog.String("job_kind", string(p.kind)),
		slog.Int("concurrency", p.opts.Concurrency),
		slog.Duration("poll_interval", p.opts.PollInterval),
		slog.Duration("visibility_timeout", p.opts.VisibilityTimeout),
	)
	return nil
}

// Close stops claiming new jobs and waits for in-flight attempts to finish.
// When ctx expires first, the remaining attempts are cancelled and released
// back to the queue without spending an attempt, and Close waits for their
// handlers to return so the connection is not closed under them.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.abort()
		p.logger.Info("worker pool stopped", slog.String("job_kind", string(p.kind)))
		return nil
	case <-ctx.Done():
	}

	p.logger.Warn("drain deadline reached; interrupting running attempts", slog.String("job_kind", string(p.kind)))
	p.abort()

	select {
	case <-done:
		return fmt.Errorf("draining %s workers: %w", p.kind, ctx.Err())
	case <-time.After(abortGrace):
		return fmt.Errorf("%s handlers ignored cancellation after %s: %w", p.kind, abortGrace, ctx.Err())
	}
}

func (p *Pool) worker(workerID string) {
	defer p.wg.Done()

	p.logger.Debug("worker started", slog.String("worker", workerID))

	for {
		select {
		case <-p.pollCtx.Done():
			p.logger.Debug("worker stopping", slog.String("worker", workerID))
			return
		default:
			if err := p.processJob(workerID); err != nil {
				if !errors.Is(err, errNoJobs) && !errors.Is(err, context.Canceled) {
					p.logger.Error("error processing job",
						slog.String("worker", workerID),
						slog.String("error", err.Error()))
				}

				select {
				case <-p.pollCtx.Done():
					return
				case <-time.After(p.opts.PollInterval):
				}
			}
		}
	}
}

var errNoJobs = errors.New("no jobs available")

func (p *Pool) processJob(workerID string) error {
	job, err := p.jobs.Acquire(p.pollCtx, p.kind, workerID)
	if err != nil {
		return fmt.Errorf("acquiring job: %w", err)
	}
	if job == nil {
		return errNoJobs
	}

	p.execute(job, workerID)
	return nil
}

// execute runs one attempt and persists its outcome.
func (p *Pool) execute(job *models.Job, owner string) {
	logger := observability.WithJob(p.logger, job.ID.String(), string(job.Kind), job.AttemptCount)
	ctx := observability.ContextWithLogger(p.execCtx, logger)
	store := observability.ContextWithLogger(p.storeCtx, logger)

	logger.Info("job attempt started", slog.Int("max_attempts", job.MaxAttempts))

	progress := make(chan int, 8)
	heartbeatDone := make(chan struct{})
	go p.heartbeat(ctx, job.ID, owner, progress, heartbeatDone, logger)

	result, runErr := p.safeRun(ctx, &Delivery{Job: job, Progress: progress})
	close(progress)
	<-heartbeatDone

	if runErr == nil {
		job.MarkCompleted(result)
		if err := p.jobs.Finish(store, job, owner, models.NewJobHistory(job, nil)); err != nil {
			p.logFinishError(logger, err)
			return
		}
		logger.Info("job completed", slog.Int64("duration_ms", job.DurationMs))
		p.emit(store, p.completedListeners(), Event{Job: job, Result: result})
		return
	}

	if p.execCtx.Err() != nil {
		cause := fmt.Errorf("attempt interrupted by shutdown: %w", runErr)
		history := models.NewJobHistory(job, cause)
		job.MarkInterrupted(cause)
		if err := p.jobs.Finish(store, job, owner, history); err != nil {
			p.logFinishError(logger, err)
			return
		}
		logger.Warn("job attempt interrupted; released for retry", slog.String("error", runErr.Error()))
		return
	}

	terminal := p.failAttempt(job, runErr)
	if err := p.jobs.Finish(store, job, owner, models.NewJobHistory(job, runErr)); err != nil {
		p.logFinishError(logger, err)
		return
	}
	p.afterFailure(store, logger, job, runErr, terminal)
}

// safeRun converts a handler panic into an attempt failure.
func (p *Pool) safeRun(ctx context.Context, d *Delivery) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panicked",
				slog.String("job_id", d.Job.ID.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.run(ctx, d)
}

// heartbeat refreshes the lock until progress is closed. Progress values
// are written on the heartbeat tick, or sooner when they change and the
// last write is older than progressFlushInterval.
func (p *Pool) heartbeat(ctx context.Context, id models.ULID, owner string, progress <-chan int, done chan<- struct{}, logger *slog.Logger) {
	defer close(done)

	ticker := time.NewTicker(p.opts.HeartbeatInterval)
	defer ticker.Stop()

	latest, written := 0, -1
	lastWrite := time.Now()

	write := func() {
		owned, err := p.jobs.Heartbeat(ctx, id, owner, latest)
		if err != nil {
			logger.Warn("heartbeat failed", slog.String("error", err.Error()))
			return
		}
		if !owned {
			logger.Warn("job lock lost during attempt")
		}
		written = latest
		lastWrite = time.Now()
	}

	for {
		select {
		case v, ok := <-progress:
			if !ok {
				return
			}
			latest = v
			if latest != written && time.Since(lastWrite) >= progressFlushInterval {
				write()
			}
		case <-ticker.C:
			write()
		}
	}
}

// failAttempt records a failed attempt, scheduling any retry in BackoffUnit
// steps.
func (p *Pool) failAttempt(job *models.Job, cause error) bool {
	terminal := job.MarkAttemptFailed(cause)
	if !terminal && p.opts.BackoffUnit != time.Second {
		next := models.Now().Add(job.CalculateNextBackoff() / time.Second * p.opts.BackoffUnit)
		job.NextRunAt = &next
	}
	return terminal
}

func (p *Pool) afterFailure(ctx context.Context, logger *slog.Logger, job *models.Job, cause error, terminal bool) {
	if terminal {
		logger.Error("job failed permanently",
			slog.String("error", cause.Error()),
			slog.Int("attempts", job.AttemptCount))
		if p.terminal != nil {
			p.terminal(ctx, job, cause)
		}
	} else {
		logger.Warn("job attempt failed; retry scheduled",
			slog.String("error", cause.Error()),
			slog.Time("next_run_at", *job.NextRunAt))
	}
	p.emit(ctx, p.failedListeners(), Event{Job: job, Err: cause, Terminal: terminal})
}

func (p *Pool) logFinishError(logger *slog.Logger, err error) {
	if errors.Is(err, repository.ErrLockLost) {
		logger.Warn("attempt outcome discarded; job was recovered by another worker")
		return
	}
	logger.Error("failed to record attempt outcome", slog.String("error", err.Error()))
}

func (p *Pool) maintain(interval time.Duration, fn func(ctx context.Context)) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.pollCtx.Done():
			return
		case <-ticker.C:
			fn(p.pollCtx)
		}
	}
}

// RecoverStale fails attempts whose lock went unrefreshed for longer than
// the visibility timeout. An abandoned attempt counts against the budget.
func (p *Pool) RecoverStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-p.opts.VisibilityTimeout)
	stale, err := p.jobs.FindStale(ctx, p.kind, cutoff)
	if err != nil {
		return 0, fmt.Errorf("finding stale %s jobs: %w", p.kind, err)
	}

	recovered := 0
	for _, job := range stale {
		owner := job.LockedBy
		logger := observability.WithJob(p.logger, job.ID.String(), string(job.Kind), job.AttemptCount)
		logger.Warn("recovering stale job", slog.String("locked_by", owner))

		cause := fmt.Errorf("attempt abandoned: lock held by %s was not refreshed", owner)
		if job.LockedAt != nil {
			cause = fmt.Errorf("attempt abandoned: lock held by %s since %s", owner, job.LockedAt.Format(time.RFC3339))
		}

		terminal := p.failAttempt(job, cause)
		if err := p.jobs.Finish(ctx, job, owner, models.NewJobHistory(job, cause)); err != nil {
			p.logFinishError(logger, err)
			continue
		}
		recovered++
		p.afterFailure(ctx, logger, job, cause, terminal)
	}
	return recovered, nil
}

func (p *Pool) recoverStale(ctx context.Context) {
	if _, err := p.RecoverStale(ctx); err != nil {
		p.logger.Error("stale recovery failed", slog.String("error", err.Error()))
	}
}

// PurgeExpired deletes finished jobs past their retention window and
// attempt history older than the failed-job window.
func (p *Pool) PurgeExpired(ctx context.Context) (int64, error) {
	now := time.Now()

	completed, err := p.jobs.DeleteFinished(ctx, p.kind, models.JobStatusCompleted, now.Add(-p.policy.KeepCompleted))
	if err != nil {
		return 0, fmt.Errorf("deleting completed %s jobs: %w", p.kind, err)
	}
	failed, err := p.jobs.DeleteFinished(ctx, p.kind, models.JobStatusFailed, now.Add(-p.policy.KeepFailed))
	if err != nil {
		return completed, fmt.Errorf("deleting failed %s jobs: %w", p.kind, err)
	}
	if _, err := p.jobs.DeleteHistory(ctx, now.Add(-p.policy.KeepFailed)); err != nil {
		return completed + failed, fmt.Errorf("deleting job history: %w", err)
	}
	return completed + failed, nil
}

func (p *Pool) purgeExpired(ctx context.Context) {
	deleted, err := p.PurgeExpired(ctx)
	if err != nil {
		p.logger.Error("retention sweep failed", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		p.logger.Info("expired jobs removed", slog.String("job_kind", string(p.kind)), slog.Int64("deleted", deleted))
	}
}

func (p *Pool) completedListeners() []Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onCompleted
}

func (p *Pool) failedListeners() []Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onFailed
}

func (p *Pool) emit(ctx context.Context, listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ctx, ev)
	}
}
