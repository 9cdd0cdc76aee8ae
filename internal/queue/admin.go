package queue

import (
	"context"
	"fmt"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/repository"
)

// Stats is a snapshot of job counts.
type Stats struct {
	Counts []repository.JobCount                         `json:"counts"`
	ByKind map[models.JobKind]map[models.JobStatus]int64 `json:"by_kind"`
	Totals map[models.JobStatus]int64                    `json:"totals"`
}

// Admin exposes operator actions on the queue.
type Admin struct {
	jobs repository.JobRepository
}

// NewAdmin returns an Admin backed by conn.
func NewAdmin(conn *Connection) *Admin {
	return &Admin{jobs: conn.Jobs()}
}

// Get returns a job by its string ID. Returns repository.ErrJobNotFound
// when missing.
func (a *Admin) Get(ctx context.Context, id string) (*models.Job, error) {
	ulid, err := models.ParseULID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrJobNotFound, id)
	}
	job, err := a.jobs.GetByID(ctx, ulid)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrJobNotFound, id)
	}
	return job, nil
}

// Retry replays a terminally failed job with a fresh attempt budget.
func (a *Admin) Retry(ctx context.Context, id string) (*models.Job, error) {
	ulid, err := models.ParseULID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrJobNotFound, id)
	}
	return a.jobs.Retry(ctx, ulid)
}

// List returns jobs matching filter.
func (a *Admin) List(ctx context.Context, filter repository.JobFilter) ([]*models.Job, error) {
	return a.jobs.List(ctx, filter)
}

// History returns the attempt history of a job.
func (a *Admin) History(ctx context.Context, id string) ([]*models.JobHistory, error) {
	job, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.jobs.GetHistory(ctx, job.ID)
}

// Stats returns job counts by kind and status.
func (a *Admin) Stats(ctx context.Context) (*Stats, error) {
	counts, err := a.jobs.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}

	s := &Stats{
		Counts: counts,
		ByKind: make(map[models.JobKind]map[models.JobStatus]int64),
		Totals: make(map[models.JobStatus]int64),
	}
	for _, kind := range models.AllJobKinds() {
		s.ByKind[kind] = make(map[models.JobStatus]int64)
	}
	for _, c := range counts {
		if s.ByKind[c.Kind] == nil {
			s.ByKind[c.Kind] = make(map[models.JobStatus]int64)
		}
		s.ByKind[c.Kind][c.Status] += c.Count
		s.Totals[c.Status] += c.Count
	}
	return s, nil
}
