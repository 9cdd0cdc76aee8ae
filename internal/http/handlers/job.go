package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/repository"
)

// JobAdmin is the queue administration surface the handler needs.
type JobAdmin interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	Retry(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, filter repository.JobFilter) ([]*models.Job, error)
	History(ctx context.Context, id string) ([]*models.JobHistory, error)
	Stats(ctx context.Context) (*queue.Stats, error)
}

var _ JobAdmin = (*queue.Admin)(nil)

// JobHandler handles job API endpoints.
type JobHandler struct {
	admin JobAdmin
}

// NewJobHandler creates a new job handler.
func NewJobHandler(admin JobAdmin) *JobHandler {
	return &JobHandler{admin: admin}
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Returns jobs, newest first, optionally filtered by kind, status or subject",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getJobStats",
		Method:      "GET",
		Path:        "/api/v1/jobs/stats",
		Summary:     "Get job statistics",
		Description: "Returns job counts by kind and status",
		Tags:        []string{"Jobs"},
	}, h.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job",
		Description: "Returns a job by ID",
		Tags:        []string{"Jobs"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "getJobHistory",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}/history",
		Summary:     "Get job history",
		Description: "Returns every finished attempt of a job",
		Tags:        []string{"Jobs"},
	}, h.GetHistory)

	huma.Register(api, huma.Operation{
		OperationID: "retryJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/retry",
		Summary:     "Retry job",
		Description: "Requeues a failed job with a fresh attempt budget",
		Tags:        []string{"Jobs"},
	}, h.Retry)
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct {
	Kind      string `query:"kind" doc:"Filter by job kind"`
	Status    string `query:"status" doc:"Filter by job status"`
	SubjectID string `query:"subject_id" doc:"Filter by video, asset or event ID"`
	Limit     int    `query:"limit" default:"100" minimum:"1" maximum:"1000"`
}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs []JobResponse `json:"jobs"`
	}
}

// List returns jobs matching the query filters.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	filter := repository.JobFilter{SubjectID: input.SubjectID, Limit: input.Limit}
	if input.Kind != "" {
		kind, err := models.ParseJobKind(input.Kind)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		filter.Kind = kind
	}
	if input.Status != "" {
		status, err := models.ParseJobStatus(input.Status)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		filter.Status = status
	}

	jobs, err := h.admin.List(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs", err)
	}

	resp := &ListJobsOutput{}
	resp.Body.Jobs = make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp.Body.Jobs = append(resp.Body.Jobs, JobFromModel(j))
	}
	return resp, nil
}

// GetJobInput is the input for single job endpoints.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetJobOutput is the output for getting a job.
type GetJobOutput struct {
	Body JobResponse
}

// GetByID returns a job by ID.
func (h *JobHandler) GetByID(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	job, err := h.admin.Get(ctx, input.ID)
	if err != nil {
		return nil, jobError(err, "failed to get job")
	}
	return &GetJobOutput{Body: JobFromModel(job)}, nil
}

// GetJobHistoryOutput is the output for a job's attempt history.
type GetJobHistoryOutput struct {
	Body struct {
		Attempts []JobHistoryResponse `json:"attempts"`
	}
}

// GetHistory returns the finished attempts of a job.
func (h *JobHandler) GetHistory(ctx context.Context, input *GetJobInput) (*GetJobHistoryOutput, error) {
	history, err := h.admin.History(ctx, input.ID)
	if err != nil {
		return nil, jobError(err, "failed to get job history")
	}

	resp := &GetJobHistoryOutput{}
	resp.Body.Attempts = make([]JobHistoryResponse, 0, len(history))
	for _, entry := range history {
		resp.Body.Attempts = append(resp.Body.Attempts, JobHistoryFromModel(entry))
	}
	return resp, nil
}

// GetJobStatsInput is the input for job statistics.
type GetJobStatsInput struct{}

// GetJobStatsOutput is the output for job statistics.
type GetJobStatsOutput struct {
	Body JobStatsResponse
}

// GetStats returns job counts.
func (h *JobHandler) GetStats(ctx context.Context, _ *GetJobStatsInput) (*GetJobStatsOutput, error) {
	stats, err := h.admin.Stats(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get job stats", err)
	}

	body := JobStatsResponse{
		ByKind: make(map[string]map[string]int64, len(stats.ByKind)),
		Totals: make(map[string]int64, len(stats.Totals)),
	}
	for kind, byStatus := range stats.ByKind {
		row := make(map[string]int64, len(byStatus))
		for status, n := range byStatus {
			row[string(status)] = n
		}
		body.ByKind[string(kind)] = row
	}
	for status, n := range stats.Totals {
		body.Totals[string(status)] = n
	}
	return &GetJobStatsOutput{Body: body}, nil
}

// RetryJobOutput is the output for retrying a job.
type RetryJobOutput struct {
	Body JobResponse
}

// Retry requeues a failed job.
func (h *JobHandler) Retry(ctx context.Context, input *GetJobInput) (*RetryJobOutput, error) {
	job, err := h.admin.Retry(ctx, input.ID)
	if err != nil {
		return nil, jobError(err, "failed to retry job")
	}
	return &RetryJobOutput{Body: JobFromModel(job)}, nil
}

func jobError(err error, msg string) error {
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, repository.ErrJobNotFailed):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}
