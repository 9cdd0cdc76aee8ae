// Package settings provides the operator settings snapshot shared by the
// workers and services. The cache is an owned value passed to consumers;
// there is no package-level state.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/proofreel/internal/models"
)

// DefaultTTL is used when the cache is created without a TTL.
const DefaultTTL = 30 * time.Second

// DefaultCleanPreviewResolutions applies when the setting row is missing.
var DefaultCleanPreviewResolutions = []models.Resolution{models.Resolution720p, models.Resolution1080p}

// Snapshot is an immutable view of the settings at load time.
type Snapshot struct {
	WatermarkText           string
	CleanPreviewResolutions []models.Resolution
	Destinations            []*models.NotificationDestination
	LoadedAt                time.Time
}

// EnabledDestinations returns the destinations that are switched on.
func (s *Snapshot) EnabledDestinations() []*models.NotificationDestination {
	var out []*models.NotificationDestination
	for _, d := range s.Destinations {
		if d.IsEnabled() {
			out = append(out, d)
		}
	}
	return out
}

// SettingsSource reads the raw key/value settings.
type SettingsSource interface {
	GetAll(ctx context.Context) (map[string]string, error)
}

// DestinationSource reads the configured notification destinations.
type DestinationSource interface {
	GetAll(ctx context.Context) ([]*models.NotificationDestination, error)
}

// Cache loads a Snapshot on demand and keeps it for ttl.
type Cache struct {
	settings     SettingsSource
	destinations DestinationSource
	ttl          time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewCache creates a settings cache.
func NewCache(settings SettingsSource, destinations DestinationSource, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		settings:     settings,
		destinations: destinations,
		ttl:          ttl,
		logger:       logger,
		now:          time.Now,
	}
}

// Get returns the current snapshot, reloading it when it has expired or
// was invalidated.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	if c.fresh() {
		snap := c.snapshot
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.fresh() {
		return c.snapshot, nil
	}

	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.snapshot = snap
	return snap, nil
}

// Invalidate drops the snapshot so the next Get reloads it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
}

// caller holds c.mu.
func (c *Cache) fresh() bool {
	return c.snapshot != nil && c.now().Sub(c.snapshot.LoadedAt) < c.ttl
}

func (c *Cache) load(ctx context.Context) (*Snapshot, error) {
	values, err := c.settings.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	snap := &Snapshot{
		WatermarkText: strings.TrimSpace(values[models.SettingWatermarkText]),
		LoadedAt:      c.now(),
	}

	if raw, ok := values[models.SettingCleanPreviewResolutions]; ok {
		snap.CleanPreviewResolutions = c.parseResolutions(raw)
	} else {
		snap.CleanPreviewResolutions = append([]models.Resolution(nil), DefaultCleanPreviewResolutions...)
	}

	if c.destinations != nil {
		dests, err := c.destinations.GetAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading notification destinations: %w", err)
		}
		snap.Destinations = dests
	}

	return snap, nil
}

// parseResolutions parses a comma-separated list, dropping unknown and
// duplicate entries. An empty value disables clean previews.
func (c *Cache) parseResolutions(raw string) []models.Resolution {
	var out []models.Resolution
	seen := make(map[models.Resolution]bool)
	for part := range strings.SplitSeq(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		res, err := models.ParseResolution(part)
		if err != nil {
			c.logger.Warn("ignoring clean preview resolution",
				slog.String("value", part),
				slog.String("error", err.Error()))
			continue
		}
		if seen[res] {
			continue
		}
		seen[res] = true
		out = append(out, res)
	}
	return out
}
