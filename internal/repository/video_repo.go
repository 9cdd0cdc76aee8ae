package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/proofreel/internal/models"
	"gorm.io/gorm"
)

// videoRepo implements VideoRepository using GORM.
type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(db *gorm.DB) *videoRepo {
	return &videoRepo{db: db}
}

// Create inserts a video in PROCESSING state.
func (r *videoRepo) Create(ctx context.Context, video *models.Video) error {
	if err := video.Validate(); err != nil {
		return err
	}
	if video.Status == "" {
		video.Status = models.StatusProcessing
	}
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("creating video: %w", err)
	}
	return nil
}

// GetByID retrieves a video by ID.
func (r *videoRepo) GetByID(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&video).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting video by ID: %w", err)
	}
	return &video, nil
}

// List returns the videos of a project, or all videos when projectID is empty.
func (r *videoRepo) List(ctx context.Context, projectID string) ([]*models.Video, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	var videos []*models.Video
	if err := query.Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	return videos, nil
}

// MarkProcessing resets render state ahead of a new transcode.
func (r *videoRepo) MarkProcessing(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]any{
		"status":              models.StatusProcessing,
		"processing_error":    nil,
		"processing_progress": 0,
	})
}

// MarkReady records the preview and probe metadata.
func (r *videoRepo) MarkReady(ctx context.Context, id string, ready VideoReady) error {
	return r.update(ctx, id, map[string]any{
		"status":              models.StatusReady,
		"preview_path":        ready.PreviewPath,
		"processing_error":    nil,
		"processing_progress": 100,
		"width":               ready.Width,
		"height":              ready.Height,
		"duration_seconds":    ready.DurationSeconds,
		"frame_rate":          ready.FrameRate,
	})
}

// MarkError records a terminal processing failure.
func (r *videoRepo) MarkError(ctx context.Context, id string, message string) error {
	if len(message) > 4096 {
		message = message[:4096]
	}
	return r.update(ctx, id, map[string]any{
		"status":           models.StatusError,
		"processing_error": message,
	})
}

// SetProgress records render progress.
func (r *videoRepo) SetProgress(ctx context.Context, id string, percent int) error {
	return r.update(ctx, id, map[string]any{"processing_progress": percent})
}

// SetApproved flips the approval flag.
func (r *videoRepo) SetApproved(ctx context.Context, id string, approved bool) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ?", id).
		Updates(map[string]any{"approved": approved, "updated_at": models.Now()})
	if result.Error != nil {
		return false, fmt.Errorf("setting video approval: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// SetCleanPreviewPath writes only the clean preview column for res.
func (r *videoRepo) SetCleanPreviewPath(ctx context.Context, id string, res models.Resolution, path string) error {
	if !res.Valid() {
		return models.ErrInvalidResolution
	}
	return r.update(ctx, id, map[string]any{models.CleanPreviewColumn(res): path})
}

func (r *videoRepo) update(ctx context.Context, id string, columns map[string]any) error {
	columns["updated_at"] = models.Now()
	if err := r.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).Updates(columns).Error; err != nil {
		return fmt.Errorf("updating video %s: %w", id, err)
	}
	return nil
}

// Ensure videoRepo implements VideoRepository at compile time.
var _ VideoRepository = (*videoRepo)(nil)
