package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/proofreel/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *jobRepo {
	return &jobRepo{db: db}
}

// Create enqueues a new job. A job without NextRunAt is runnable at once.
func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.NextRunAt == nil {
		now := models.Now()
		job.NextRunAt = &now
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *jobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// List returns jobs matching filter, newest first.
func (r *jobRepo) List(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	query := r.db.WithContext(ctx).Model(&models.Job{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.SubjectID != "" {
		query = query.Where("subject_id = ?", filter.SubjectID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var jobs []*models.Job
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

// Acquire claims the oldest runnable job of kind.
//
// The candidate row is selected FOR UPDATE SKIP LOCKED where the dialect
// supports it (the sqlite dialect drops the locking clause and relies on its
// single writer). The claim itself is a conditional UPDATE, so two workers
// racing for the same row cannot both win on any dialect.
func (r *jobRepo) Acquire(ctx context.Context, kind models.JobKind, workerID string) (*models.Job, error) {
	var job models.Job
	claimed := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := models.Now()
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("kind = ?", kind).
			Where("status IN ?", []models.JobStatus{models.JobStatusPending, models.JobStatusScheduled}).
			Where("next_run_at IS NULL OR next_run_at <= ?", now).
			Where("locked_by IS NULL OR locked_by = ''").
			Order("next_run_at ASC, id ASC").
			Limit(1).
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("finding runnable job: %w", err)
		}

		job.MarkRunning(workerID)
		result := tx.Model(&models.Job{}).
			Where("id = ?", job.ID).
			Where("status IN ?", []models.JobStatus{models.JobStatusPending, models.JobStatusScheduled}).
			Where("locked_by IS NULL OR locked_by = ''").
			Updates(map[string]any{
				"status":        job.Status,
				"started_at":    job.StartedAt,
				"locked_by":     job.LockedBy,
				"locked_at":     job.LockedAt,
				"attempt_count": job.AttemptCount,
				"progress":      0,
				"updated_at":    now,
			})
		if result.Error != nil {
			return fmt.Errorf("claiming job: %w", result.Error)
		}
		claimed = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, nil
	}
	return &job, nil
}

// Heartbeat refreshes locked_at and progress for an owned attempt.
func (r *jobRepo) Heartbeat(ctx context.Context, id models.ULID, workerID string, progress int) (bool, error) {
	now := models.Now()
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", id, workerID, models.JobStatusRunning).
		UpdateColumns(map[string]any{
			"locked_at": now,
			"progress":  progress,
		})
	if result.Error != nil {
		return false, fmt.Errorf("refreshing job lock: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Finish persists an attempt outcome. The update is conditional on owner
// still holding the lock so a recovered attempt cannot be overwritten.
func (r *jobRepo) Finish(ctx context.Context, job *models.Job, owner string, history *models.JobHistory) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Job{}).
			Where("id = ? AND locked_by = ? AND status = ?", job.ID, owner, models.JobStatusRunning).
			Updates(map[string]any{
				"status":        job.Status,
				"attempt_count": job.AttemptCount,
				"next_run_at":   job.NextRunAt,
				"completed_at":  job.CompletedAt,
				"duration_ms":   job.DurationMs,
				"progress":      job.Progress,
				"last_error":    job.LastError,
				"result":        job.Result,
				"locked_by":     job.LockedBy,
				"locked_at":     job.LockedAt,
				"updated_at":    models.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("finishing job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrLockLost
		}
		if history != nil {
			if err := tx.Create(history).Error; err != nil {
				return fmt.Errorf("creating job history: %w", err)
			}
		}
		return nil
	})
}

// FindStale returns running jobs whose lock has not been refreshed since before.
func (r *jobRepo) FindStale(ctx context.Context, kind models.JobKind, before time.Time) ([]*models.Job, error) {
	var jobs []*models.Job
	err := r.db.WithContext(ctx).
		Where("kind = ? AND status = ? AND locked_at < ?", kind, models.JobStatusRunning, before).
		Order("locked_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("finding stale jobs: %w", err)
	}
	return jobs, nil
}

// DeleteFinished removes finished jobs older than the cutoff.
func (r *jobRepo) DeleteFinished(ctx context.Context, kind models.JobKind, status models.JobStatus, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("kind = ? AND status = ? AND completed_at < ?", kind, status, before).
		Delete(&models.Job{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting %s jobs: %w", status, result.Error)
	}
	return result.RowsAffected, nil
}

// Retry re-queues a terminally failed job with a fresh attempt budget.
func (r *jobRepo) Retry(ctx context.Context, id models.ULID) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return fmt.Errorf("getting job: %w", err)
		}
		if job.Status != models.JobStatusFailed {
			return ErrJobNotFailed
		}
		job.ResetForReplay()
		result := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", job.ID, models.JobStatusFailed).
			Updates(map[string]any{
				"status":        job.Status,
				"attempt_count": job.AttemptCount,
				"progress":      job.Progress,
				"next_run_at":   job.NextRunAt,
				"started_at":    nil,
				"completed_at":  nil,
				"locked_by":     "",
				"locked_at":     nil,
				"updated_at":    models.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("requeueing job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrJobNotFailed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Counts returns job counts grouped by kind and status.
func (r *jobRepo) Counts(ctx context.Context) ([]JobCount, error) {
	var counts []JobCount
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Select("kind, status, COUNT(*) AS count").
		Group("kind, status").
		Order("kind, status").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	return counts, nil
}

// GetHistory returns the attempt history of a job.
func (r *jobRepo) GetHistory(ctx context.Context, jobID models.ULID) ([]*models.JobHistory, error) {
	var history []*models.JobHistory
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("attempt_number ASC, id ASC").Find(&history).Error; err != nil {
		return nil, fmt.Errorf("getting job history: %w", err)
	}
	return history, nil
}

// DeleteHistory deletes history records older than the specified time.
func (r *jobRepo) DeleteHistory(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("completed_at < ?", before).
		Delete(&models.JobHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting job history: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure jobRepo implements JobRepository at compile time.
var _ JobRepository = (*jobRepo)(nil)
