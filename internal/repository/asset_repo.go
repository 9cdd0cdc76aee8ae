package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/proofreel/internal/models"
	"gorm.io/gorm"
)

// assetRepo implements AssetRepository using GORM.
type assetRepo struct {
	db *gorm.DB
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db *gorm.DB) *assetRepo {
	return &assetRepo{db: db}
}

// Create inserts an asset in PROCESSING state.
func (r *assetRepo) Create(ctx context.Context, asset *models.Asset) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	if asset.Status == "" {
		asset.Status = models.StatusProcessing
	}
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return fmt.Errorf("creating asset: %w", err)
	}
	return nil
}

// GetByID retrieves an asset by ID.
func (r *assetRepo) GetByID(ctx context.Context, id string) (*models.Asset, error) {
	var asset models.Asset
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting asset by ID: %w", err)
	}
	return &asset, nil
}

// MarkProcessing resets processing state ahead of a new job.
func (r *assetRepo) MarkProcessing(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]any{
		"status":           models.StatusProcessing,
		"processing_error": nil,
	})
}

// MarkReady records categorisation results.
func (r *assetRepo) MarkReady(ctx context.Context, id string, ready AssetReady) error {
	return r.update(ctx, id, map[string]any{
		"status":           models.StatusReady,
		"category":         ready.Category,
		"content_type":     ready.ContentType,
		"size_bytes":       ready.SizeBytes,
		"thumbnail_path":   ready.ThumbnailPath,
		"processing_error": nil,
	})
}

// MarkError records a terminal processing failure.
func (r *assetRepo) MarkError(ctx context.Context, id string, message string) error {
	if len(message) > 4096 {
		message = message[:4096]
	}
	return r.update(ctx, id, map[string]any{
		"status":           models.StatusError,
		"processing_error": message,
	})
}

func (r *assetRepo) update(ctx context.Context, id string, columns map[string]any) error {
	columns["updated_at"] = models.Now()
	if err := r.db.WithContext(ctx).Model(&models.Asset{}).Where("id = ?", id).Updates(columns).Error; err != nil {
		return fmt.Errorf("updating asset %s: %w", id, err)
	}
	return nil
}

// Ensure assetRepo implements AssetRepository at compile time.
var _ AssetRepository = (*assetRepo)(nil)
