package repository

import (
	"context"
	"fmt"

	"github.com/jmylchreest/proofreel/internal/models"
	"gorm.io/gorm"
)

// destinationRepo implements DestinationRepository using GORM.
type destinationRepo struct {
	db *gorm.DB
}

// NewDestinationRepository creates a new DestinationRepository.
func NewDestinationRepository(db *gorm.DB) *destinationRepo {
	return &destinationRepo{db: db}
}

// Create inserts a destination. Validation runs in the model's BeforeCreate hook.
func (r *destinationRepo) Create(ctx context.Context, dest *models.NotificationDestination) error {
	if err := r.db.WithContext(ctx).Create(dest).Error; err != nil {
		return fmt.Errorf("creating notification destination: %w", err)
	}
	return nil
}

// GetAll returns every destination ordered by name.
func (r *destinationRepo) GetAll(ctx context.Context) ([]*models.NotificationDestination, error) {
	var dests []*models.NotificationDestination
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&dests).Error; err != nil {
		return nil, fmt.Errorf("getting notification destinations: %w", err)
	}
	return dests, nil
}

// GetByIDs returns the destinations with the given IDs. Unknown IDs are ignored.
func (r *destinationRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.NotificationDestination, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var dests []*models.NotificationDestination
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&dests).Error; err != nil {
		return nil, fmt.Errorf("getting notification destinations by IDs: %w", err)
	}
	return dests, nil
}

// SetEnabled toggles a destination.
func (r *destinationRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	err := r.db.WithContext(ctx).Model(&models.NotificationDestination{}).
		Where("id = ?", id).
		Updates(map[string]any{"enabled": enabled, "updated_at": models.Now()}).Error
	if err != nil {
		return fmt.Errorf("updating notification destination: %w", err)
	}
	return nil
}

// Delete removes a destination.
func (r *destinationRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.NotificationDestination{}).Error; err != nil {
		return fmt.Errorf("deleting notification destination: %w", err)
	}
	return nil
}

// Ensure destinationRepo implements DestinationRepository at compile time.
var _ DestinationRepository = (*destinationRepo)(nil)
