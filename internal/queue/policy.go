// Package queue is the durable job queue: typed producers and consumers over
// the jobs table, per-kind retry and retention policy, and the worker pools
// that run handlers.
package queue

import (
	"time"

	"github.com/jmylchreest/proofreel/internal/models"
)

// Policy is the retry and retention policy for one job kind.
type Policy struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	KeepCompleted time.Duration
	KeepFailed    time.Duration
}

const (
	defaultMaxAttempts  = 3
	notifyMaxAttempts   = 5
	defaultBackoffBase  = 2 * time.Second
	keepCompletedWindow = time.Hour
	keepFailedWindow    = 24 * time.Hour
)

// PolicyFor returns the policy for kind. Notifications get a larger attempt
// budget because their failures are usually transient.
func PolicyFor(kind models.JobKind) Policy {
	p := Policy{
		MaxAttempts:   defaultMaxAttempts,
		BackoffBase:   defaultBackoffBase,
		KeepCompleted: keepCompletedWindow,
		KeepFailed:    keepFailedWindow,
	}
	if kind == models.JobKindNotification {
		p.MaxAttempts = notifyMaxAttempts
	}
	return p
}

// BackoffSeconds returns the base delay in whole seconds as stored on a job.
func (p Policy) BackoffSeconds() int {
	return max(int(p.BackoffBase/time.Second), 1)
}
