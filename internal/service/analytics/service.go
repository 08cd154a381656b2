// Package analytics aggregates appointment demand by spatial cell.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
	"github.com/geoclinic/clinic-api/internal/spatial"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
	"github.com/geoclinic/clinic-api/pkg/messaging"
	"github.com/geoclinic/clinic-api/pkg/metrics"
)

const (
	defaultRegionLimit = 50
	maxRegionLimit     = 500
)

type Config struct {
	CacheTTL        time.Duration
	CleanupInterval time.Duration
	MaxRing         int
}

func DefaultConfig() Config {
	return Config{
		CacheTTL:        30 * time.Second,
		CleanupInterval: 5 * time.Minute,
		MaxRing:         3,
	}
}

type Service struct {
	store   repository.Store
	cache   *cache.Cache
	maxRing int
	metrics *metrics.Metrics
}

func NewService(store repository.Store, cfg Config, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		store:   store,
		cache:   cache.New(cfg.CacheTTL, cfg.CleanupInterval),
		maxRing: cfg.MaxRing,
		metrics: m,
	}
}

// GetRegion counts appointments booked in cellID and, when ring > 0, in
// every cell within ring steps of it. Counts come from the appointments
// table, so they reflect the cell snapshot taken at booking time.
func (s *Service) GetRegion(ctx context.Context, role model.Role, cellID string, ring int) (*model.RegionAnalytics, error) {
	if !role.Can(model.CapViewRegionAnalytics) {
		return nil, apperrors.AuthorizationDenied(fmt.Sprintf("role %s cannot view region analytics", role))
	}
	if ring < 0 || ring > s.maxRing {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("ring must be within 0..%d", s.maxRing), nil)
	}
	cell, err := spatial.ParseCell(cellID)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid cell id", err)
	}
	// stored cells and neighbor lists use the canonical lowercase form
	cellID = cell.String()

	key := fmt.Sprintf("%s/%d", cellID, ring)
	if v, ok := s.cache.Get(key); ok {
		s.metrics.AnalyticsCache.WithLabelValues("hit").Inc()
		return clone(v.(*model.RegionAnalytics)), nil
	}
	s.metrics.AnalyticsCache.WithLabelValues("miss").Inc()

	cells, err := spatial.Neighbors(cellID, ring)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid region query", err)
	}
	counts, err := s.store.Appointments().CountByCells(ctx, cells)
	if err != nil {
		return nil, apperrors.Persistence("count appointments by cell", err)
	}
	byCell := make(map[string]int64, len(counts))
	for _, c := range counts {
		byCell[c.CellID] = c.Count
	}

	result := &model.RegionAnalytics{CellID: cellID, Count: byCell[cellID], Ring: ring}
	result.Total = result.Count
	if ring > 0 {
		result.Neighbors = make([]model.RegionCount, 0, len(cells)-1)
		for _, c := range cells {
			if c == cellID {
				continue
			}
			result.Neighbors = append(result.Neighbors, model.RegionCount{CellID: c, Count: byCell[c]})
			result.Total += byCell[c]
		}
	}

	s.cache.SetDefault(key, result)
	return clone(result), nil
}

// ListRegions returns the busiest cells from the running region statistics.
func (s *Service) ListRegions(ctx context.Context, role model.Role, limit int) ([]*model.RegionStat, error) {
	if !role.Can(model.CapViewRegionAnalytics) {
		return nil, apperrors.AuthorizationDenied(fmt.Sprintf("role %s cannot view region analytics", role))
	}
	if limit <= 0 {
		limit = defaultRegionLimit
	}
	if limit > maxRegionLimit {
		limit = maxRegionLimit
	}

	stats, err := s.store.RegionStats().List(ctx, limit)
	if err != nil {
		return nil, apperrors.Persistence("list region stats", err)
	}
	if stats == nil {
		stats = []*model.RegionStat{}
	}
	return stats, nil
}

// InvalidateOn drops cached results whenever a booking notification is
// relayed on channel, so replicas see new appointments before the TTL
// expires. It returns once the subscription is established.
func (s *Service) InvalidateOn(ctx context.Context, sub messaging.Subscriber, channel string) error {
	msgs, err := sub.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", channel, err)
	}
	go func() {
		for msg := range msgs {
			if msg.Type == model.EventPatientNotification {
				s.flush()
			}
		}
	}()
	return nil
}

func (s *Service) flush() {
	s.cache.Flush()
}

func clone(r *model.RegionAnalytics) *model.RegionAnalytics {
	out := *r
	if r.Neighbors != nil {
		out.Neighbors = append([]model.RegionCount(nil), r.Neighbors...)
	}
	return &out
}
