package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence"
)

// StatsCache keeps the latest per-town statistics snapshot hot so the stats
// CLI can answer without a database round trip. The underlying cache sits
// behind a circuit breaker: a flaky Redis must never slow a batch run.
type StatsCache struct {
	cache   Cache
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewStatsCache wraps the given cache with the stats key scheme and breaker.
func NewStatsCache(c Cache, ttl time.Duration) *StatsCache {
	settings := gobreaker.Settings{
		Name:    "stats-cache",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &StatsCache{
		cache:   c,
		ttl:     ttl,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func statsKey(townID int) string {
	return fmt.Sprintf("lotlogic:stats:%d", townID)
}

// Put stores a town's stats row. Failures trip the breaker and are returned
// for logging only; the authoritative copy is already persisted.
func (s *StatsCache) Put(ctx context.Context, row persistence.TownStatsRow) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal stats snapshot: %w", err)
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.cache.Set(ctx, statsKey(row.TownID), payload, s.ttl)
	})
	if err != nil {
		return fmt.Errorf("stats cache unavailable: %w", err)
	}
	return nil
}

// Get returns the cached stats row for a town, or nil on miss, corrupt
// payload, or open breaker.
func (s *StatsCache) Get(ctx context.Context, townID int) *persistence.TownStatsRow {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		payload, ok, err := s.cache.Get(ctx, statsKey(townID))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		var row persistence.TownStatsRow
		if err := json.Unmarshal(payload, &row); err != nil {
			return nil, fmt.Errorf("corrupt stats snapshot: %w", err)
		}
		return &row, nil
	})
	if err != nil || result == nil {
		return nil
	}
	row, ok := result.(*persistence.TownStatsRow)
	if !ok {
		return nil
	}
	return row
}
