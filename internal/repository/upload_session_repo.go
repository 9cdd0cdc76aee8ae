package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/proofreel/internal/models"
	"gorm.io/gorm"
)

// uploadSessionRepo implements UploadSessionRepository using GORM.
type uploadSessionRepo struct {
	db *gorm.DB
}

// NewUploadSessionRepository creates a new UploadSessionRepository.
func NewUploadSessionRepository(db *gorm.DB) *uploadSessionRepo {
	return &uploadSessionRepo{db: db}
}

// Create inserts an upload session.
func (r *uploadSessionRepo) Create(ctx context.Context, session *models.UploadSession) error {
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = models.Now()
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating upload session: %w", err)
	}
	return nil
}

// FindInactive returns sessions whose last activity is before the cutoff,
// regardless of status.
func (r *uploadSessionRepo) FindInactive(ctx context.Context, before time.Time) ([]*models.UploadSession, error) {
	var sessions []*models.UploadSession
	if err := r.db.WithContext(ctx).Where("last_activity_at < ?", before).Order("last_activity_at ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("finding inactive upload sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes an upload session row.
func (r *uploadSessionRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.UploadSession{}).Error; err != nil {
		return fmt.Errorf("deleting upload session: %w", err)
	}
	return nil
}

// Ensure uploadSessionRepo implements UploadSessionRepository at compile time.
var _ UploadSessionRepository = (*uploadSessionRepo)(nil)
