// Package repository defines data access interfaces for the queue and the
// records the pipeline mutates. All database access goes through these
// interfaces so workers can be tested against fakes.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmylchreest/proofreel/internal/models"
)

var (
	// ErrJobNotFound is returned by admin operations on an unknown job.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotFailed is returned when replaying a job that has not failed terminally.
	ErrJobNotFailed = errors.New("job is not in failed state")
	// ErrLockLost is returned when a worker tries to finish an attempt it no
	// longer owns (the lock was recovered as stale).
	ErrLockLost = errors.New("job lock lost")
)

// JobFilter narrows job listings. Zero values mean "any".
type JobFilter struct {
	Kind      models.JobKind
	Status    models.JobStatus
	SubjectID string
	Limit     int
}

// JobCount is one cell of the kind x status breakdown.
type JobCount struct {
	Kind   models.JobKind   `json:"kind"`
	Status models.JobStatus `json:"status"`
	Count  int64            `json:"count"`
}

// JobRepository is the durable queue.
type JobRepository interface {
	// Create enqueues a new job.
	Create(ctx context.Context, job *models.Job) error
	// GetByID retrieves a job by ID. Returns nil, nil when missing.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	// List returns jobs matching filter, newest first.
	List(ctx context.Context, filter JobFilter) ([]*models.Job, error)
	// Acquire claims the oldest runnable job of kind for workerID.
	// Returns nil, nil when nothing is runnable or another worker won the race.
	Acquire(ctx context.Context, kind models.JobKind, workerID string) (*models.Job, error)
	// Heartbeat refreshes the lock and progress of an owned attempt. It
	// reports false when workerID no longer owns the job.
	Heartbeat(ctx context.Context, id models.ULID, workerID string, progress int) (bool, error)
	// Finish persists the outcome of an attempt owned by owner and records
	// history in the same transaction. Returns ErrLockLost if owner lost the job.
	Finish(ctx context.Context, job *models.Job, owner string, history *models.JobHistory) error
	// FindStale returns running jobs of kind whose lock is older than before.
	FindStale(ctx context.Context, kind models.JobKind, before time.Time) ([]*models.Job, error)
	// DeleteFinished removes jobs of kind in status that finished before the cutoff.
	DeleteFinished(ctx context.Context, kind models.JobKind, status models.JobStatus, before time.Time) (int64, error)
	// Retry gives a terminally failed job a fresh attempt budget.
	Retry(ctx context.Context, id models.ULID) (*models.Job, error)
	// Counts returns job counts grouped by kind and status.
	Counts(ctx context.Context) ([]JobCount, error)
	// GetHistory returns the attempt history of a job, oldest first.
	GetHistory(ctx context.Context, jobID models.ULID) ([]*models.JobHistory, error)
	// DeleteHistory removes history rows completed before the cutoff.
	DeleteHistory(ctx context.Context, before time.Time) (int64, error)
}

// VideoReady carries everything written when a preview becomes available.
type VideoReady struct {
	PreviewPath     string
	Width           int
	Height          int
	DurationSeconds float64
	FrameRate       float64
}

// VideoRepository persists video state. Every write is a single-row
// absolute update so redelivered jobs converge on the same row.
type VideoRepository interface {
	Create(ctx context.Context, video *models.Video) error
	// GetByID returns nil, nil when the video does not exist.
	GetByID(ctx context.Context, id string) (*models.Video, error)
	List(ctx context.Context, projectID string) ([]*models.Video, error)
	// MarkProcessing resets a video to PROCESSING before a new render.
	MarkProcessing(ctx context.Context, id string) error
	MarkReady(ctx context.Context, id string, ready VideoReady) error
	MarkError(ctx context.Context, id string, message string) error
	SetProgress(ctx context.Context, id string, percent int) error
	// SetApproved reports false when the video does not exist.
	SetApproved(ctx context.Context, id string, approved bool) (bool, error)
	// SetCleanPreviewPath writes only the clean preview column for res.
	SetCleanPreviewPath(ctx context.Context, id string, res models.Resolution, path string) error
}

// AssetReady carries everything written when an asset finishes processing.
type AssetReady struct {
	Category      models.AssetCategory
	ContentType   string
	SizeBytes     int64
	ThumbnailPath *string
}

// AssetRepository persists asset state.
type AssetRepository interface {
	Create(ctx context.Context, asset *models.Asset) error
	// GetByID returns nil, nil when the asset does not exist.
	GetByID(ctx context.Context, id string) (*models.Asset, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkReady(ctx context.Context, id string, ready AssetReady) error
	MarkError(ctx context.Context, id string, message string) error
}

// DestinationRepository persists notification destinations.
type DestinationRepository interface {
	Create(ctx context.Context, dest *models.NotificationDestination) error
	GetAll(ctx context.Context) ([]*models.NotificationDestination, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.NotificationDestination, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
}

// UploadSessionRepository reads and reaps resumable upload sessions.
type UploadSessionRepository interface {
	Create(ctx context.Context, session *models.UploadSession) error
	// FindInactive returns sessions whose last activity is before the cutoff.
	FindInactive(ctx context.Context, before time.Time) ([]*models.UploadSession, error)
	Delete(ctx context.Context, id string) error
}

// SettingsRepository persists operator settings.
type SettingsRepository interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}
