package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// Schema statements are idempotent so the batch job can ensure tables exist
// before its first write.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS parcel_valuations (
		town_id               INTEGER          NOT NULL,
		loc_id                TEXT             NOT NULL,
		market_value          DOUBLE PRECISION,
		market_value_per_sqft DOUBLE PRECISION,
		comparable_value      DOUBLE PRECISION,
		comparable_count      INTEGER          NOT NULL DEFAULT 0,
		comparable_avg_psf    DOUBLE PRECISION,
		hedonic_value         DOUBLE PRECISION,
		hedonic_r2            DOUBLE PRECISION,
		confidence            DOUBLE PRECISION NOT NULL DEFAULT 0,
		methodology           TEXT             NOT NULL,
		model_version         TEXT             NOT NULL,
		run_id                TEXT             NOT NULL,
		valued_at             TIMESTAMPTZ      NOT NULL,
		payload               JSONB,
		PRIMARY KEY (town_id, loc_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_parcel_valuations_value
		ON parcel_valuations (town_id, market_value DESC NULLS LAST)`,
	`CREATE TABLE IF NOT EXISTS town_valuation_stats (
		town_id         INTEGER          PRIMARY KEY,
		global_psf      DOUBLE PRECISION,
		sale_count      INTEGER          NOT NULL DEFAULT 0,
		parcel_count    INTEGER          NOT NULL DEFAULT 0,
		valued_count    INTEGER          NOT NULL DEFAULT 0,
		comp_coverage   DOUBLE PRECISION NOT NULL DEFAULT 0,
		model_available BOOLEAN          NOT NULL DEFAULT FALSE,
		model_r2        DOUBLE PRECISION,
		model_version   TEXT             NOT NULL,
		run_id          TEXT             NOT NULL,
		computed_at     TIMESTAMPTZ      NOT NULL
	)`,
}

// EnsureSchema creates the valuation tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// Connect opens a PostgreSQL connection pool via the pq driver.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}
