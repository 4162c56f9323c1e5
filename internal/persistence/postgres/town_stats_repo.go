package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence"
)

// townStatsRepo implements persistence.TownStatsRepo.
type townStatsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTownStatsRepo creates a PostgreSQL town statistics repository.
func NewTownStatsRepo(db *sqlx.DB, timeout time.Duration) persistence.TownStatsRepo {
	return &townStatsRepo{db: db, timeout: timeout}
}

const townStatsColumns = `town_id, global_psf, sale_count, parcel_count, valued_count,
	comp_coverage, model_available, model_r2, model_version, run_id, computed_at`

// Upsert writes the stats row for a town; conflicts on town_id update.
func (r *townStatsRepo) Upsert(ctx context.Context, row persistence.TownStatsRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO town_valuation_stats (` + townStatsColumns + `)
		VALUES (:town_id, :global_psf, :sale_count, :parcel_count, :valued_count,
		        :comp_coverage, :model_available, :model_r2, :model_version,
		        :run_id, :computed_at)
		ON CONFLICT (town_id) DO UPDATE SET
			global_psf = EXCLUDED.global_psf,
			sale_count = EXCLUDED.sale_count,
			parcel_count = EXCLUDED.parcel_count,
			valued_count = EXCLUDED.valued_count,
			comp_coverage = EXCLUDED.comp_coverage,
			model_available = EXCLUDED.model_available,
			model_r2 = EXCLUDED.model_r2,
			model_version = EXCLUDED.model_version,
			run_id = EXCLUDED.run_id,
			computed_at = EXCLUDED.computed_at`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to upsert town stats: %w", err)
	}
	return nil
}

// Get returns the stored stats for one town, nil when absent.
func (r *townStatsRepo) Get(ctx context.Context, townID int) (*persistence.TownStatsRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + townStatsColumns + `
		FROM town_valuation_stats
		WHERE town_id = $1`

	var row persistence.TownStatsRow
	if err := r.db.GetContext(ctx, &row, query, townID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get town stats: %w", err)
	}
	return &row, nil
}

// List returns stats for all towns ordered by town id.
func (r *townStatsRepo) List(ctx context.Context) ([]persistence.TownStatsRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + townStatsColumns + `
		FROM town_valuation_stats
		ORDER BY town_id ASC`

	var rows []persistence.TownStatsRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list town stats: %w", err)
	}
	return rows, nil
}
