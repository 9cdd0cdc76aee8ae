package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/observability"
)

// Handle identifies an enqueued job.
type Handle struct {
	ID   models.ULID    `json:"id"`
	Kind models.JobKind `json:"kind"`
}

// Queue is the typed producer and consumer factory for one job kind.
type Queue[P Payload] struct {
	conn   *Connection
	kind   models.JobKind
	policy Policy
	logger *slog.Logger
}

// New returns the queue for P's kind on conn.
func New[P Payload](conn *Connection, logger *slog.Logger) *Queue[P] {
	var zero P
	kind := zero.Kind()
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue[P]{
		conn:   conn,
		kind:   kind,
		policy: PolicyFor(kind),
		logger: observability.WithComponent(logger, "queue").With(slog.String("job_kind", string(kind))),
	}
}

// Kind returns the job kind this queue carries.
func (q *Queue[P]) Kind() models.JobKind {
	return q.kind
}

// Policy returns the retry and retention policy applied to new jobs.
func (q *Queue[P]) Policy() Policy {
	return q.policy
}

// Enqueue validates and persists payload. The job is runnable immediately.
func (q *Queue[P]) Enqueue(ctx context.Context, payload P) (*Handle, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", q.kind, err)
	}

	job := &models.Job{
		Kind:           q.kind,
		Payload:        string(data),
		SubjectID:      payload.Subject(),
		MaxAttempts:    q.policy.MaxAttempts,
		BackoffSeconds: q.policy.BackoffSeconds(),
	}
	if err := q.conn.Jobs().Create(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueueing %s job: %w", q.kind, err)
	}

	q.logger.Debug("job enqueued",
		slog.String("job_id", job.ID.String()),
		slog.String("subject_id", job.SubjectID),
	)
	return &Handle{ID: job.ID, Kind: q.kind}, nil
}

// Consume builds a pool that runs handler for this kind. The pool does
// nothing until Start.
func (q *Queue[P]) Consume(handler Handler[P], opts PoolOptions) *Pool {
	run := func(ctx context.Context, d *Delivery) (string, error) {
		payload, err := decodePayload[P](d.Job)
		if err != nil {
			return "", err
		}
		return handler.Handle(ctx, d, payload)
	}

	var terminal func(ctx context.Context, job *models.Job, cause error)
	if th, ok := handler.(TerminalFailureHandler[P]); ok {
		terminal = func(ctx context.Context, job *models.Job, cause error) {
			payload, err := decodePayload[P](job)
			if err != nil {
				q.logger.Error("cannot decode payload for terminal failure handling",
					slog.String("job_id", job.ID.String()),
					slog.String("error", err.Error()),
				)
				return
			}
			th.OnTerminalFailure(ctx, job, payload, cause)
		}
	}

	if opts.Logger == nil {
		opts.Logger = q.logger
	}
	return newPool(q.conn.Jobs(), q.kind, q.policy, run, terminal, opts)
}
