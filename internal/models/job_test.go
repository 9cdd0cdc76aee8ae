package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_TableName(t *testing.T) {
	assert.Equal(t, "jobs", Job{}.TableName())
	assert.Equal(t, "job_history", JobHistory{}.TableName())
}

func TestParseJobKind(t *testing.T) {
	for _, k := range AllJobKinds() {
		got, err := ParseJobKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseJobKind("render")
	assert.ErrorIs(t, err, ErrInvalidJobKind)
}

func TestJob_StatusChecks(t *testing.T) {
	tests := []struct {
		status     JobStatus
		isPending  bool
		isRunning  bool
		isFinished bool
	}{
		{JobStatusPending, true, false, false},
		{JobStatusScheduled, true, false, false},
		{JobStatusRunning, false, true, false},
		{JobStatusCompleted, false, false, true},
		{JobStatusFailed, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := &Job{Status: tt.status}
			assert.Equal(t, tt.isPending, job.IsPending())
			assert.Equal(t, tt.isRunning, job.IsRunning())
			assert.Equal(t, tt.isFinished, job.IsFinished())
		})
	}
}

func TestJob_CalculateNextBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{11, 2048 * time.Second},
		{12, time.Hour},
		{13, time.Hour},
		{64, time.Hour},
	}

	for _, tt := range tests {
		job := &Job{BackoffSeconds: 2, AttemptCount: tt.attempt}
		assert.Equal(t, tt.want, job.CalculateNextBackoff(), "attempt %d", tt.attempt)
	}

	t.Run("zero base falls back to two seconds", func(t *testing.T) {
		job := &Job{AttemptCount: 2}
		assert.Equal(t, 4*time.Second, job.CalculateNextBackoff())
	})
}

func TestJob_MarkAttemptFailed(t *testing.T) {
	t.Run("schedules a retry while budget remains", func(t *testing.T) {
		job := &Job{Kind: JobKindTranscode, MaxAttempts: 3, BackoffSeconds: 2}
		job.MarkRunning("w1")

		before := time.Now()
		terminal := job.MarkAttemptFailed(errors.New("ffmpeg exited 1"))

		assert.False(t, terminal)
		assert.Equal(t, JobStatusScheduled, job.Status)
		assert.Equal(t, "ffmpeg exited 1", job.LastError)
		assert.Empty(t, job.LockedBy)
		assert.Nil(t, job.LockedAt)
		require.NotNil(t, job.NextRunAt)
		assert.WithinDuration(t, before.Add(2*time.Second), *job.NextRunAt, time.Second)
	})

	t.Run("fails terminally on the last attempt", func(t *testing.T) {
		job := &Job{Kind: JobKindNotification, MaxAttempts: 5, BackoffSeconds: 2}
		for range 4 {
			job.MarkRunning("w1")
			require.False(t, job.MarkAttemptFailed(errors.New("timeout")))
		}
		job.MarkRunning("w1")
		assert.True(t, job.MarkAttemptFailed(errors.New("timeout")))
		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Equal(t, 5, job.AttemptCount)
		assert.NotNil(t, job.CompletedAt)
		assert.Nil(t, job.NextRunAt)
	})

	t.Run("long errors are truncated to the column width", func(t *testing.T) {
		job := &Job{MaxAttempts: 1}
		job.MarkRunning("w1")
		job.MarkAttemptFailed(errors.New(string(make([]byte, 5000))))
		assert.Len(t, job.LastError, 4096)
	})
}

func TestJob_MarkCompleted(t *testing.T) {
	job := &Job{MaxAttempts: 3}
	job.MarkRunning("worker-a")
	assert.Equal(t, 1, job.AttemptCount)
	assert.Equal(t, "worker-a", job.LockedBy)

	job.MarkCompleted("ok")
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "ok", job.Result)
	assert.Empty(t, job.LockedBy)
	assert.NotNil(t, job.CompletedAt)
}

func TestJob_ResetForReplay(t *testing.T) {
	job := &Job{MaxAttempts: 1, Kind: JobKindAsset}
	job.MarkRunning("w")
	require.True(t, job.MarkAttemptFailed(errors.New("bad input")))

	job.ResetForReplay()
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Zero(t, job.AttemptCount)
	assert.True(t, job.CanRetry())
	assert.Nil(t, job.CompletedAt)
	assert.Equal(t, "bad input", job.LastError)
}

func TestJob_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Job{Payload: "{}"}).Validate(), ErrInvalidJobKind)
	assert.ErrorIs(t, (&Job{Kind: JobKindAsset}).Validate(), ErrJobPayloadRequired)
	assert.NoError(t, (&Job{Kind: JobKindAsset, Payload: "{}"}).Validate())
}

func TestNewJobHistory(t *testing.T) {
	job := &Job{Kind: JobKindTranscode, SubjectID: "v1", MaxAttempts: 3}
	job.ID = NewULID()
	job.MarkRunning("w")

	ok := NewJobHistory(job, nil)
	assert.Equal(t, job.ID, ok.JobID)
	assert.Equal(t, JobStatusCompleted, ok.Status)
	assert.Equal(t, 1, ok.AttemptNumber)

	failed := NewJobHistory(job, errors.New("boom"))
	assert.Equal(t, JobStatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
}
