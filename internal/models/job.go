package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobKind is the closed set of work the pipeline knows how to run.
type JobKind string

const (
	// JobKindTranscode renders the watermarked review preview for a video.
	JobKindTranscode JobKind = "transcode"
	// JobKindAsset categorises an uploaded asset and renders its thumbnail.
	JobKindAsset JobKind = "asset"
	// JobKindCleanPreview renders an unwatermarked preview after approval.
	JobKindCleanPreview JobKind = "clean_preview"
	// JobKindNotification fans a message out to notification destinations.
	JobKindNotification JobKind = "notification"
)

// AllJobKinds returns every job kind in startup order.
func AllJobKinds() []JobKind {
	return []JobKind{JobKindTranscode, JobKindAsset, JobKindCleanPreview, JobKindNotification}
}

// Valid reports whether k is one of the known kinds.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindTranscode, JobKindAsset, JobKindCleanPreview, JobKindNotification:
		return true
	}
	return false
}

// ParseJobKind converts a string into a JobKind.
func ParseJobKind(s string) (JobKind, error) {
	k := JobKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobKind, s)
	}
	return k, nil
}

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be claimed.
	JobStatusPending JobStatus = "pending"
	// JobStatusScheduled indicates the job is waiting out a retry backoff.
	JobStatusScheduled JobStatus = "scheduled"
	// JobStatusRunning indicates a worker owns the current attempt.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job exhausted its attempts.
	JobStatusFailed JobStatus = "failed"
)

// ParseJobStatus converts a string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(s); st {
	case JobStatusPending, JobStatusScheduled, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidJobStatus, s)
}

// maxBackoff caps exponential retry delays.
const maxBackoff = time.Hour

// Job is a durable unit of work in the queue.
type Job struct {
	BaseModel

	// Kind selects the pool that consumes the job.
	Kind JobKind `gorm:"not null;size:32;index:idx_jobs_claim,priority:1" json:"kind"`

	// Status indicates the current status of the job.
	Status JobStatus `gorm:"not null;default:'pending';size:20;index:idx_jobs_claim,priority:2" json:"status"`

	// Payload is the JSON encoded kind-specific payload.
	Payload string `gorm:"type:text;not null" json:"payload"`

	// SubjectID is the video, asset or event the job is about. Used for
	// listing and operator lookups only.
	SubjectID string `gorm:"size:64;index" json:"subject_id,omitempty"`

	// NextRunAt is the earliest time the job may be claimed.
	NextRunAt *Time `gorm:"index:idx_jobs_claim,priority:3" json:"next_run_at,omitempty"`

	StartedAt   *Time `json:"started_at,omitempty"`
	CompletedAt *Time `gorm:"index" json:"completed_at,omitempty"`
	DurationMs  int64 `json:"duration_ms,omitempty"`

	// AttemptCount is the number of attempts started so far, including
	// attempts abandoned by a crashed worker.
	AttemptCount int `gorm:"default:0" json:"attempt_count"`

	// MaxAttempts is the total attempt budget for this job.
	MaxAttempts int `gorm:"default:3" json:"max_attempts"`

	// BackoffSeconds is the base delay doubled after each failed attempt.
	BackoffSeconds int `gorm:"default:2" json:"backoff_seconds"`

	// Progress is the last reported 0-100 progress of the running attempt.
	Progress int `gorm:"default:0" json:"progress"`

	LastError string `gorm:"size:4096" json:"last_error,omitempty"`
	Result    string `gorm:"size:4096" json:"result,omitempty"`

	// LockedBy is the worker that owns the current attempt.
	LockedBy string `gorm:"size:100;index" json:"locked_by,omitempty"`

	// LockedAt is refreshed by the owning worker's heartbeat. A running job
	// whose lock is older than the visibility timeout is considered abandoned.
	LockedAt *Time `json:"locked_at,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsPending returns true if the job is waiting to be claimed.
func (j *Job) IsPending() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusScheduled
}

// IsRunning returns true if the job is currently executing.
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// IsFinished returns true if the job will not run again on its own.
func (j *Job) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// CanRetry reports whether a failed attempt leaves budget for another one.
func (j *Job) CanRetry() bool {
	return j.AttemptCount < j.MaxAttempts
}

// MarkRunning records that workerID has started a new attempt.
func (j *Job) MarkRunning(workerID string) {
	now := Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.LockedBy = workerID
	j.LockedAt = &now
	j.AttemptCount++
	j.Progress = 0
}

// MarkCompleted marks the job as completed successfully.
func (j *Job) MarkCompleted(result string) {
	now := Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.Result = truncate(result, 4096)
	j.LastError = ""
	j.Progress = 100
	j.NextRunAt = nil
	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
	j.LockedBy = ""
	j.LockedAt = nil
}

// MarkAttemptFailed records a failed attempt and either schedules the next
// one or, when the budget is spent, marks the job as terminally failed. It
// reports whether the failure was terminal.
func (j *Job) MarkAttemptFailed(err error) bool {
	now := Now()
	if err != nil {
		j.LastError = truncate(err.Error(), 4096)
	}
	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
	j.LockedBy = ""
	j.LockedAt = nil

	if j.CanRetry() {
		next := now.Add(j.CalculateNextBackoff())
		j.Status = JobStatusScheduled
		j.NextRunAt = &next
		return false
	}

	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.NextRunAt = nil
	return true
}

// MarkInterrupted releases an attempt that was cut short by shutdown. The
// job becomes runnable again at once and the attempt is not counted.
func (j *Job) MarkInterrupted(err error) {
	now := Now()
	if err != nil {
		j.LastError = truncate(err.Error(), 4096)
	}
	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
	if j.AttemptCount > 0 {
		j.AttemptCount--
	}
	j.Status = JobStatusPending
	j.NextRunAt = &now
	j.LockedBy = ""
	j.LockedAt = nil
}

// CalculateNextBackoff returns the delay before the next attempt:
// base * 2^(attemptCount-1), capped at one hour.
func (j *Job) CalculateNextBackoff() time.Duration {
	base := j.BackoffSeconds
	if base <= 0 {
		base = 2
	}
	attempts := max(j.AttemptCount, 1)

	backoff := time.Duration(base) * time.Second
	for i := 1; i < attempts; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}

// ResetForReplay gives a terminally failed job a fresh attempt budget.
func (j *Job) ResetForReplay() {
	now := Now()
	j.Status = JobStatusPending
	j.AttemptCount = 0
	j.Progress = 0
	j.NextRunAt = &now
	j.StartedAt = nil
	j.CompletedAt = nil
	j.LockedBy = ""
	j.LockedAt = nil
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if !j.Kind.Valid() {
		return ErrInvalidJobKind
	}
	if j.Payload == "" {
		return ErrJobPayloadRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates its ULID.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// JobHistory stores one row per finished attempt.
type JobHistory struct {
	BaseModel

	JobID         ULID      `gorm:"not null;index" json:"job_id"`
	Kind          JobKind   `gorm:"not null;size:32;index" json:"kind"`
	SubjectID     string    `gorm:"size:64;index" json:"subject_id,omitempty"`
	Status        JobStatus `gorm:"not null;size:20" json:"status"`
	StartedAt     *Time     `json:"started_at,omitempty"`
	CompletedAt   *Time     `gorm:"index" json:"completed_at,omitempty"`
	DurationMs    int64     `json:"duration_ms,omitempty"`
	AttemptNumber int       `json:"attempt_number"`
	Error         string    `gorm:"size:4096" json:"error,omitempty"`
	Result        string    `gorm:"size:4096" json:"result,omitempty"`
}

// TableName returns the table name for JobHistory.
func (JobHistory) TableName() string {
	return "job_history"
}

// NewJobHistory snapshots the outcome of the attempt j just finished.
// Retries are recorded with status failed so history reflects attempts,
// not job state.
func NewJobHistory(j *Job, attemptErr error) *JobHistory {
	h := &JobHistory{
		JobID:         j.ID,
		Kind:          j.Kind,
		SubjectID:     j.SubjectID,
		Status:        JobStatusCompleted,
		StartedAt:     j.StartedAt,
		DurationMs:    j.DurationMs,
		AttemptNumber: j.AttemptCount,
		Result:        j.Result,
	}
	now := Now()
	h.CompletedAt = &now
	if attemptErr != nil {
		h.Status = JobStatusFailed
		h.Error = truncate(attemptErr.Error(), 4096)
		h.Result = ""
	}
	return h
}
