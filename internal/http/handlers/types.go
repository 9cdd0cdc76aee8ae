package handlers

import (
	"time"

	"github.com/jmylchreest/proofreel/internal/models"
)

// Health types

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string            `json:"status" doc:"healthy or degraded"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Database      DatabaseHealth    `json:"database"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// CPUInfo contains load averages for the host.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo contains host and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	SwapTotalMB       float64           `json:"swap_total_mb"`
	SwapUsedMB        float64           `json:"swap_used_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// ProcessMemoryInfo covers this process and its children. Encoder
// subprocesses show up as children while jobs run.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
	ChildProcessCount  int     `json:"child_process_count"`
}

// DatabaseHealth reports queue database reachability.
type DatabaseHealth struct {
	Status         string  `json:"status"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

// Job types

// JobResponse represents a queued job in API responses.
type JobResponse struct {
	ID             string           `json:"id"`
	Kind           models.JobKind   `json:"kind"`
	Status         models.JobStatus `json:"status"`
	SubjectID      string           `json:"subject_id,omitempty"`
	Payload        string           `json:"payload"`
	AttemptCount   int              `json:"attempt_count"`
	MaxAttempts    int              `json:"max_attempts"`
	BackoffSeconds int              `json:"backoff_seconds"`
	Progress       int              `json:"progress"`
	LastError      string           `json:"last_error,omitempty"`
	Result         string           `json:"result,omitempty"`
	LockedBy       string           `json:"locked_by,omitempty"`
	NextRunAt      *time.Time       `json:"next_run_at,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	DurationMs     int64            `json:"duration_ms,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// JobFromModel converts a model to a response.
func JobFromModel(j *models.Job) JobResponse {
	return JobResponse{
		ID:             j.ID.String(),
		Kind:           j.Kind,
		Status:         j.Status,
		SubjectID:      j.SubjectID,
		Payload:        j.Payload,
		AttemptCount:   j.AttemptCount,
		MaxAttempts:    j.MaxAttempts,
		BackoffSeconds: j.BackoffSeconds,
		Progress:       j.Progress,
		LastError:      j.LastError,
		Result:         j.Result,
		LockedBy:       j.LockedBy,
		NextRunAt:      j.NextRunAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		DurationMs:     j.DurationMs,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

// JobHistoryResponse represents one finished attempt.
type JobHistoryResponse struct {
	ID            string           `json:"id"`
	JobID         string           `json:"job_id"`
	Kind          models.JobKind   `json:"kind"`
	Status        models.JobStatus `json:"status"`
	AttemptNumber int              `json:"attempt_number"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	DurationMs    int64            `json:"duration_ms,omitempty"`
	Error         string           `json:"error,omitempty"`
	Result        string           `json:"result,omitempty"`
}

// JobHistoryFromModel converts a model to a response.
func JobHistoryFromModel(h *models.JobHistory) JobHistoryResponse {
	return JobHistoryResponse{
		ID:            h.ID.String(),
		JobID:         h.JobID.String(),
		Kind:          h.Kind,
		Status:        h.Status,
		AttemptNumber: h.AttemptNumber,
		StartedAt:     h.StartedAt,
		CompletedAt:   h.CompletedAt,
		DurationMs:    h.DurationMs,
		Error:         h.Error,
		Result:        h.Result,
	}
}

// JobStatsResponse is the kind x status breakdown of the queue.
type JobStatsResponse struct {
	ByKind map[string]map[string]int64 `json:"by_kind"`
	Totals map[string]int64            `json:"totals"`
}
