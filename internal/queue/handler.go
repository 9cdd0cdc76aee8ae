package queue

import (
	"context"

	"github.com/jmylchreest/proofreel/internal/models"
)

// Delivery is one attempt at a job as seen by a handler.
type Delivery struct {
	Job *models.Job
	// Progress accepts percentages in [0, 100]. The pool persists the
	// latest value on its heartbeat. Handlers must not send after
	// returning and must not close it.
	Progress chan<- int
}

// Attempt returns the 1-based attempt number.
func (d *Delivery) Attempt() int {
	return d.Job.AttemptCount
}

// Report sends a progress value without blocking the handler. A value is
// dropped if the pool has not consumed the previous one.
func (d *Delivery) Report(percent int) {
	if d.Progress == nil {
		return
	}
	select {
	case d.Progress <- min(max(percent, 0), 100):
	default:
	}
}

// Handler processes payloads of one kind. The returned string is stored
// as the job result.
type Handler[P Payload] interface {
	Handle(ctx context.Context, d *Delivery, payload P) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[P Payload] func(ctx context.Context, d *Delivery, payload P) (string, error)

// Handle calls f.
func (f HandlerFunc[P]) Handle(ctx context.Context, d *Delivery, payload P) (string, error) {
	return f(ctx, d, payload)
}

// TerminalFailureHandler is implemented by handlers that need to react once
// a job has spent its attempt budget, for example to mark a record as
// errored. It is called at most once per terminal failure.
type TerminalFailureHandler[P Payload] interface {
	OnTerminalFailure(ctx context.Context, job *models.Job, payload P, cause error)
}
