package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/proofreel/internal/allocator"
	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdmin implements JobAdmin for testing.
type fakeAdmin struct {
	jobs    map[string]*models.Job
	history map[string][]*models.JobHistory
	filter  repository.JobFilter
	err     error
}

func newFakeAdmin(jobs ...*models.Job) *fakeAdmin {
	a := &fakeAdmin{
		jobs:    make(map[string]*models.Job),
		history: make(map[string][]*models.JobHistory),
	}
	for _, j := range jobs {
		a.jobs[j.ID.String()] = j
	}
	return a
}

func (a *fakeAdmin) Get(_ context.Context, id string) (*models.Job, error) {
	if a.err != nil {
		return nil, a.err
	}
	j, ok := a.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return j, nil
}

func (a *fakeAdmin) Retry(ctx context.Context, id string) (*models.Job, error) {
	j, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status != models.JobStatusFailed {
		return nil, repository.ErrJobNotFailed
	}
	j.Status = models.JobStatusPending
	j.AttemptCount = 0
	return j, nil
}

func (a *fakeAdmin) List(_ context.Context, filter repository.JobFilter) ([]*models.Job, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.filter = filter
	var out []*models.Job
	for _, j := range a.jobs {
		if filter.Kind != "" && j.Kind != filter.Kind {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (a *fakeAdmin) History(ctx context.Context, id string) ([]*models.JobHistory, error) {
	if _, err := a.Get(ctx, id); err != nil {
		return nil, err
	}
	return a.history[id], nil
}

func (a *fakeAdmin) Stats(context.Context) (*queue.Stats, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &queue.Stats{
		ByKind: map[models.JobKind]map[models.JobStatus]int64{
			models.JobKindTranscode: {models.JobStatusCompleted: 3, models.JobStatusFailed: 1},
		},
		Totals: map[models.JobStatus]int64{models.JobStatusCompleted: 3, models.JobStatusFailed: 1},
	}, nil
}

func newJob(kind models.JobKind, status models.JobStatus) *models.Job {
	j := &models.Job{Kind: kind, Status: status, SubjectID: "v1", MaxAttempts: 3, AttemptCount: 3}
	j.ID = models.NewULID()
	return j
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.True(t, errors.As(err, &se), "expected huma status error, got %v", err)
	return se.GetStatus()
}

func TestJobHandler_List(t *testing.T) {
	admin := newFakeAdmin(
		newJob(models.JobKindTranscode, models.JobStatusCompleted),
		newJob(models.JobKindAsset, models.JobStatusPending),
	)
	h := NewJobHandler(admin)
	ctx := context.Background()

	out, err := h.List(ctx, &ListJobsInput{Kind: "transcode", Status: "completed", SubjectID: "v1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, out.Body.Jobs, 1)
	assert.Equal(t, models.JobKindTranscode, out.Body.Jobs[0].Kind)
	assert.Equal(t, repository.JobFilter{
		Kind:      models.JobKindTranscode,
		Status:    models.JobStatusCompleted,
		SubjectID: "v1",
		Limit:     10,
	}, admin.filter)

	t.Run("invalid kind", func(t *testing.T) {
		_, err := h.List(ctx, &ListJobsInput{Kind: "ingest"})
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := h.List(ctx, &ListJobsInput{Status: "exploded"})
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	})

	t.Run("backend error", func(t *testing.T) {
		admin.err = errors.New("db down")
		defer func() { admin.err = nil }()
		_, err := h.List(ctx, &ListJobsInput{})
		assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))
	})
}

func TestJobHandler_GetByID(t *testing.T) {
	job := newJob(models.JobKindNotification, models.JobStatusRunning)
	h := NewJobHandler(newFakeAdmin(job))
	ctx := context.Background()

	out, err := h.GetByID(ctx, &GetJobInput{ID: job.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, job.ID.String(), out.Body.ID)
	assert.Equal(t, models.JobStatusRunning, out.Body.Status)

	_, err = h.GetByID(ctx, &GetJobInput{ID: models.NewULID().String()})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestJobHandler_GetHistory(t *testing.T) {
	job := newJob(models.JobKindTranscode, models.JobStatusFailed)
	admin := newFakeAdmin(job)
	admin.history[job.ID.String()] = []*models.JobHistory{
		models.NewJobHistory(job, errors.New("encoder exited 1")),
	}
	h := NewJobHandler(admin)

	out, err := h.GetHistory(context.Background(), &GetJobInput{ID: job.ID.String()})
	require.NoError(t, err)
	require.Len(t, out.Body.Attempts, 1)
	assert.Equal(t, job.ID.String(), out.Body.Attempts[0].JobID)
	assert.Equal(t, "encoder exited 1", out.Body.Attempts[0].Error)
}

func TestJobHandler_Retry(t *testing.T) {
	failed := newJob(models.JobKindTranscode, models.JobStatusFailed)
	done := newJob(models.JobKindAsset, models.JobStatusCompleted)
	h := NewJobHandler(newFakeAdmin(failed, done))
	ctx := context.Background()

	out, err := h.Retry(ctx, &GetJobInput{ID: failed.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, out.Body.Status)
	assert.Equal(t, 0, out.Body.AttemptCount)

	_, err = h.Retry(ctx, &GetJobInput{ID: done.ID.String()})
	assert.Equal(t, http.StatusConflict, statusOf(t, err))

	_, err = h.Retry(ctx, &GetJobInput{ID: "not-a-ulid"})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestJobHandler_GetStats(t *testing.T) {
	h := NewJobHandler(newFakeAdmin())

	out, err := h.GetStats(context.Background(), &GetJobStatsInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Body.ByKind["transcode"]["completed"])
	assert.Equal(t, int64(1), out.Body.Totals["failed"])
}

func TestRoutes(t *testing.T) {
	job := newJob(models.JobKindCleanPreview, models.JobStatusFailed)
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("test", "1.0.0"))

	NewJobHandler(newFakeAdmin(job)).Register(api)
	NewPlanHandler(func() allocator.Plan {
		return allocator.Plan{TotalThreads: 8, TranscodeConcurrency: 1, ThreadsPerJob: 2, CleanPreviewConcurrency: 1, MaxThreadsUsed: 4}
	}).Register(api)
	NewHealthHandler("1.0.0").Register(api)

	do := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	t.Run("plan", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/v1/plan")
		require.Equal(t, http.StatusOK, rec.Code)
		var plan allocator.Plan
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
		assert.Equal(t, 2, plan.ThreadsPerJob)
		assert.Equal(t, 4, plan.MaxThreadsUsed)
	})

	t.Run("stats is not shadowed by id", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/v1/jobs/stats")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("job by id", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/v1/jobs/"+job.ID.String())
		require.Equal(t, http.StatusOK, rec.Code)
		var body JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, models.JobKindCleanPreview, body.Kind)
	})

	t.Run("retry", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/retry")
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = do(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/retry")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid kind query", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/v1/jobs?kind=bogus")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("livez", func(t *testing.T) {
		rec := do(http.MethodGet, "/livez")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
