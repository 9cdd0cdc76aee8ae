package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/repository"
)

// RegisterAssetInput describes an uploaded asset.
type RegisterAssetInput struct {
	ID                string
	ProjectID         string
	Name              string
	SourceStoragePath string
	// ExpectedCategory, if set, fails processing when the sniffed category differs.
	ExpectedCategory *models.AssetCategory
}

// AssetService registers assets for categorisation.
type AssetService struct {
	assets repository.AssetRepository
	jobs   Enqueuer[queue.AssetPayload]
	logger *slog.Logger
}

// NewAssetService creates a new AssetService.
func NewAssetService(assets repository.AssetRepository, jobs Enqueuer[queue.AssetPayload]) *AssetService {
	return &AssetService{
		assets: assets,
		jobs:   jobs,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *AssetService) WithLogger(logger *slog.Logger) *AssetService {
	s.logger = logger
	return s
}

// Register creates the asset record and enqueues its processing job.
func (s *AssetService) Register(ctx context.Context, in RegisterAssetInput) (*models.Asset, *queue.Handle, error) {
	asset := &models.Asset{
		Record:            models.Record{ID: in.ID},
		ProjectID:         in.ProjectID,
		Name:              in.Name,
		SourceStoragePath: in.SourceStoragePath,
		ExpectedCategory:  in.ExpectedCategory,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, nil, err
	}

	handle, err := s.enqueue(ctx, asset)
	if err != nil {
		if markErr := s.assets.MarkError(ctx, asset.ID, err.Error()); markErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark asset errored",
				slog.String("asset_id", asset.ID),
				slog.String("error", markErr.Error()))
		}
		return asset, nil, err
	}

	s.logger.InfoContext(ctx, "asset registered",
		slog.String("asset_id", asset.ID),
		slog.String("project_id", asset.ProjectID),
		slog.String("job_id", handle.ID.String()))
	return asset, handle, nil
}

// Reprocess resets an asset to PROCESSING and enqueues it again.
func (s *AssetService) Reprocess(ctx context.Context, id string) (*queue.Handle, error) {
	asset, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	if err := s.assets.MarkProcessing(ctx, id); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, asset)
}

func (s *AssetService) enqueue(ctx context.Context, asset *models.Asset) (*queue.Handle, error) {
	handle, err := s.jobs.Enqueue(ctx, queue.AssetPayload{
		AssetID:           asset.ID,
		ProjectID:         asset.ProjectID,
		SourceStoragePath: asset.SourceStoragePath,
		ExpectedCategory:  asset.ExpectedCategory,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueueing asset job: %w", err)
	}
	return handle, nil
}
