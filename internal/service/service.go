// Package service holds the enqueue side of the pipeline: the operations an
// API or the CLI calls to register media, approve videos and send
// notifications.
package service

import (
	"context"

	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/settings"
)

// Enqueuer persists jobs of one kind. *queue.Queue[P] satisfies it.
type Enqueuer[P queue.Payload] interface {
	Enqueue(ctx context.Context, payload P) (*queue.Handle, error)
}

// SettingsReader provides the current settings snapshot.
type SettingsReader interface {
	Get(ctx context.Context) (*settings.Snapshot, error)
}

// Invalidator drops cached settings after a write.
type Invalidator interface {
	Invalidate()
}
