package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
)

// HeatmapStore persists JSON snapshots keyed by string.
type HeatmapStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Heatmap is the symmetric course-name by course-name conflict count map.
type Heatmap map[string]map[string]int

// HeatmapCacheService keeps per-year conflict heatmaps warm between matrix rebuilds.
// A nil service, a nil store or a disabled cache degrade to always-miss.
type HeatmapCacheService struct {
	store   HeatmapStore
	metrics *MetricsService
	ttl     time.Duration
	enabled bool
	logger  *zap.Logger
}

func NewHeatmapCacheService(store HeatmapStore, metrics *MetricsService, ttl time.Duration, enabled bool, logger *zap.Logger) *HeatmapCacheService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeatmapCacheService{store: store, metrics: metrics, ttl: ttl, enabled: enabled, logger: logger}
}

func (s *HeatmapCacheService) active() bool {
	return s != nil && s.enabled && s.store != nil
}

// Lookup returns the cached heatmap of year, if any. Store errors count as misses.
func (s *HeatmapCacheService) Lookup(ctx context.Context, year int) (Heatmap, bool) {
	if !s.active() {
		return nil, false
	}
	start := time.Now()
	var cached Heatmap
	err := s.store.Get(ctx, heatmapKey(year), &cached)
	hit := err == nil && cached != nil
	s.metrics.RecordCacheOperation(hit, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("heatmap cache read failed", zap.Int("year", year), zap.Error(err))
	}
	return cached, hit
}

// Store caches heatmap for year until the configured TTL elapses.
func (s *HeatmapCacheService) Store(ctx context.Context, year int, heatmap Heatmap) {
	if !s.active() {
		return
	}
	start := time.Now()
	err := s.store.Set(ctx, heatmapKey(year), heatmap, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("heatmap cache write failed", zap.Int("year", year), zap.Error(err))
	}
}

// Evict drops the cached heatmap of year after the matrix changes.
func (s *HeatmapCacheService) Evict(ctx context.Context, year int) {
	if !s.active() {
		return
	}
	if err := s.store.Delete(ctx, heatmapKey(year)); err != nil {
		s.logger.Warn("heatmap cache evict failed", zap.Int("year", year), zap.Error(err))
	}
}

func heatmapKey(year int) string {
	return fmt.Sprintf("conflict-heatmap:%d", year)
}
