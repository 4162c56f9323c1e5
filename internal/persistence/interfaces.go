// Package persistence defines the storage contracts for valuation results.
// Implementations live in subpackages; the engine itself never touches them.
package persistence

import (
	"context"
	"time"
)

// ParcelValuationRow is the persisted form of one parcel valuation, keyed
// uniquely by (town_id, loc_id) so repeated runs upsert rather than
// duplicate.
type ParcelValuationRow struct {
	TownID             int                    `json:"town_id" db:"town_id"`
	LocID              string                 `json:"loc_id" db:"loc_id"`
	MarketValue        *float64               `json:"market_value,omitempty" db:"market_value"`
	MarketValuePerSqft *float64               `json:"market_value_per_sqft,omitempty" db:"market_value_per_sqft"`
	ComparableValue    *float64               `json:"comparable_value,omitempty" db:"comparable_value"`
	ComparableCount    int                    `json:"comparable_count" db:"comparable_count"`
	ComparableAvgPSF   *float64               `json:"comparable_avg_psf,omitempty" db:"comparable_avg_psf"`
	HedonicValue       *float64               `json:"hedonic_value,omitempty" db:"hedonic_value"`
	HedonicR2          *float64               `json:"hedonic_r2,omitempty" db:"hedonic_r2"`
	Confidence         float64                `json:"confidence" db:"confidence"`
	Methodology        string                 `json:"methodology" db:"methodology"`
	ModelVersion       string                 `json:"model_version" db:"model_version"`
	RunID              string                 `json:"run_id" db:"run_id"`
	ValuedAt           time.Time              `json:"valued_at" db:"valued_at"`
	Payload            map[string]interface{} `json:"payload,omitempty" db:"payload"`
}

// TownStatsRow is the persisted per-town aggregate record for one batch run.
type TownStatsRow struct {
	TownID         int       `json:"town_id" db:"town_id"`
	GlobalPSF      *float64  `json:"global_psf,omitempty" db:"global_psf"`
	SaleCount      int       `json:"sale_count" db:"sale_count"`
	ParcelCount    int       `json:"parcel_count" db:"parcel_count"`
	ValuedCount    int       `json:"valued_count" db:"valued_count"`
	CompCoverage   float64   `json:"comp_coverage" db:"comp_coverage"`
	ModelAvailable bool      `json:"model_available" db:"model_available"`
	ModelR2        *float64  `json:"model_r2,omitempty" db:"model_r2"`
	ModelVersion   string    `json:"model_version" db:"model_version"`
	RunID          string    `json:"run_id" db:"run_id"`
	ComputedAt     time.Time `json:"computed_at" db:"computed_at"`
}

// CoverageStats summarizes data quality for a town so operators can judge
// how much of the market the estimators actually reached.
type CoverageStats struct {
	ParcelCount    int     `json:"parcel_count" db:"parcel_count"`
	ValuedCount    int     `json:"valued_count" db:"valued_count"`
	WithComps      int     `json:"with_comps" db:"with_comps"`
	WithHedonic    int     `json:"with_hedonic" db:"with_hedonic"`
	MeanConfidence float64 `json:"mean_confidence" db:"mean_confidence"`
}

// ValuationRepo persists per-parcel valuation rows.
type ValuationRepo interface {
	// UpsertBatch writes rows in one statement per chunk; conflicts on
	// (town_id, loc_id) update in place.
	UpsertBatch(ctx context.Context, rows []ParcelValuationRow) error

	// GetByParcel returns the stored valuation for one parcel, nil when absent.
	GetByParcel(ctx context.Context, townID int, locID string) (*ParcelValuationRow, error)

	// ListByTown returns stored valuations for a town, highest value first.
	ListByTown(ctx context.Context, townID int, limit int) ([]ParcelValuationRow, error)

	// Coverage reports estimator coverage for a town.
	Coverage(ctx context.Context, townID int) (CoverageStats, error)
}

// TownStatsRepo persists per-town batch statistics.
type TownStatsRepo interface {
	// Upsert writes the stats row for a town; conflicts on town_id update.
	Upsert(ctx context.Context, row TownStatsRow) error

	// Get returns the stored stats for one town, nil when absent.
	Get(ctx context.Context, townID int) (*TownStatsRow, error)

	// List returns stats for all towns ordered by town id.
	List(ctx context.Context) ([]TownStatsRow, error)
}

// Repository aggregates the persistence interfaces handed to the batch
// runner.
type Repository struct {
	Valuations ValuationRepo
	TownStats  TownStatsRepo
}
