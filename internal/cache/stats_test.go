package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence"
)

// failingCache simulates a backend outage: every operation errors.
type failingCache struct{ calls int }

func (f *failingCache) Get(context.Context, string) ([]byte, bool, error) {
	f.calls++
	return nil, false, errors.New("connection refused")
}

func (f *failingCache) Set(context.Context, string, []byte, time.Duration) error {
	f.calls++
	return errors.New("connection refused")
}

func TestStatsCacheRoundTrip(t *testing.T) {
	sc := NewStatsCache(New(), time.Minute)
	ctx := context.Background()

	psf := 250.0
	row := persistence.TownStatsRow{
		TownID:       42,
		GlobalPSF:    &psf,
		SaleCount:    120,
		ParcelCount:  4000,
		ValuedCount:  3800,
		ModelVersion: "hybrid-v1.0",
		RunID:        "run-1",
		ComputedAt:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sc.Put(ctx, row))

	got := sc.Get(ctx, 42)
	require.NotNil(t, got)
	assert.Equal(t, 42, got.TownID)
	require.NotNil(t, got.GlobalPSF)
	assert.InDelta(t, 250, *got.GlobalPSF, 1e-9)
	assert.Equal(t, "run-1", got.RunID)
}

func TestStatsCacheMiss(t *testing.T) {
	sc := NewStatsCache(New(), time.Minute)
	assert.Nil(t, sc.Get(context.Background(), 7))
}

func TestStatsCacheCorruptPayload(t *testing.T) {
	backing := New()
	sc := NewStatsCache(backing, time.Minute)
	ctx := context.Background()

	require.NoError(t, backing.Set(ctx, statsKey(42), []byte("{not json"), time.Minute))
	assert.Nil(t, sc.Get(ctx, 42))
}

func TestStatsCacheBreakerOpensOnBackendFailure(t *testing.T) {
	backing := &failingCache{}
	sc := NewStatsCache(backing, time.Minute)
	ctx := context.Background()

	row := persistence.TownStatsRow{TownID: 1, ModelVersion: "hybrid-v1.0", RunID: "r"}
	for i := 0; i < 3; i++ {
		assert.Error(t, sc.Put(ctx, row))
	}
	callsWhenTripped := backing.calls

	// breaker is open: calls fail fast without touching the backend
	assert.Error(t, sc.Put(ctx, row))
	assert.Nil(t, sc.Get(ctx, 1))
	assert.Equal(t, callsWhenTripped, backing.calls)
}

func TestStatsKey(t *testing.T) {
	assert.Equal(t, "lotlogic:stats:42", statsKey(42))
}
