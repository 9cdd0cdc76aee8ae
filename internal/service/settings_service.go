package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/repository"
)

// SettingsService edits the operator settings read by the workers.
type SettingsService struct {
	repo   repository.SettingsRepository
	cache  Invalidator
	logger *slog.Logger
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(repo repository.SettingsRepository, cache Invalidator) *SettingsService {
	return &SettingsService{repo: repo, cache: cache, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (s *SettingsService) WithLogger(logger *slog.Logger) *SettingsService {
	s.logger = logger
	return s
}

// List returns the stored settings.
func (s *SettingsService) List(ctx context.Context) (map[string]string, error) {
	return s.repo.GetAll(ctx)
}

// Set validates and stores a setting, then invalidates the cache so the
// next job sees it.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	switch key {
	case models.SettingWatermarkText:
	case models.SettingCleanPreviewResolutions:
		for part := range strings.SplitSeq(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if _, err := models.ParseResolution(part); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}

	if err := s.repo.Set(ctx, key, value); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate()
	}
	s.logger.InfoContext(ctx, "setting updated", slog.String("key", key))
	return nil
}
