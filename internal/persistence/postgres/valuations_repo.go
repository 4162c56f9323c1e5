// Package postgres implements the persistence interfaces against PostgreSQL
// via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence"
)

// valuationRepo implements persistence.ValuationRepo.
type valuationRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewValuationRepo creates a PostgreSQL valuation repository.
func NewValuationRepo(db *sqlx.DB, timeout time.Duration) persistence.ValuationRepo {
	return &valuationRepo{db: db, timeout: timeout}
}

const valuationColumns = `town_id, loc_id, market_value, market_value_per_sqft,
	comparable_value, comparable_count, comparable_avg_psf,
	hedonic_value, hedonic_r2, confidence, methodology, model_version,
	run_id, valued_at, payload`

// UpsertBatch writes one multi-row INSERT per call; callers chunk by the
// configured batch size.
func (r *valuationRepo) UpsertBatch(ctx context.Context, rows []persistence.ParcelValuationRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO parcel_valuations (` + valuationColumns + `)
		VALUES (:town_id, :loc_id, :market_value, :market_value_per_sqft,
		        :comparable_value, :comparable_count, :comparable_avg_psf,
		        :hedonic_value, :hedonic_r2, :confidence, :methodology,
		        :model_version, :run_id, :valued_at, :payload)
		ON CONFLICT (town_id, loc_id) DO UPDATE SET
			market_value = EXCLUDED.market_value,
			market_value_per_sqft = EXCLUDED.market_value_per_sqft,
			comparable_value = EXCLUDED.comparable_value,
			comparable_count = EXCLUDED.comparable_count,
			comparable_avg_psf = EXCLUDED.comparable_avg_psf,
			hedonic_value = EXCLUDED.hedonic_value,
			hedonic_r2 = EXCLUDED.hedonic_r2,
			confidence = EXCLUDED.confidence,
			methodology = EXCLUDED.methodology,
			model_version = EXCLUDED.model_version,
			run_id = EXCLUDED.run_id,
			valued_at = EXCLUDED.valued_at,
			payload = EXCLUDED.payload`

	args := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		arg, err := bindValuationRow(row)
		if err != nil {
			return err
		}
		args = append(args, arg)
	}

	if _, err := r.db.NamedExecContext(ctx, query, args); err != nil {
		return fmt.Errorf("failed to upsert valuation batch: %w", err)
	}
	return nil
}

// GetByParcel returns the stored valuation for one parcel, nil when absent.
func (r *valuationRepo) GetByParcel(ctx context.Context, townID int, locID string) (*persistence.ParcelValuationRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + valuationColumns + `
		FROM parcel_valuations
		WHERE town_id = $1 AND loc_id = $2`

	row, err := scanValuationRow(r.db.QueryRowxContext(ctx, query, townID, locID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get valuation: %w", err)
	}
	return row, nil
}

// ListByTown returns stored valuations for a town, highest value first.
func (r *valuationRepo) ListByTown(ctx context.Context, townID int, limit int) ([]persistence.ParcelValuationRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + valuationColumns + `
		FROM parcel_valuations
		WHERE town_id = $1
		ORDER BY market_value DESC NULLS LAST, loc_id ASC
		LIMIT $2`

	sqlRows, err := r.db.QueryxContext(ctx, query, townID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list valuations: %w", err)
	}
	defer sqlRows.Close()

	var rows []persistence.ParcelValuationRow
	for sqlRows.Next() {
		row, err := scanValuationRow(sqlRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan valuation: %w", err)
		}
		rows = append(rows, *row)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating valuations: %w", err)
	}
	return rows, nil
}

// Coverage reports estimator coverage for a town.
func (r *valuationRepo) Coverage(ctx context.Context, townID int) (persistence.CoverageStats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COUNT(*) AS parcel_count,
		       COUNT(market_value) AS valued_count,
		       COUNT(*) FILTER (WHERE comparable_count > 0) AS with_comps,
		       COUNT(hedonic_value) AS with_hedonic,
		       COALESCE(AVG(confidence), 0) AS mean_confidence
		FROM parcel_valuations
		WHERE town_id = $1`

	var stats persistence.CoverageStats
	if err := r.db.GetContext(ctx, &stats, query, townID); err != nil {
		return persistence.CoverageStats{}, fmt.Errorf("failed to query coverage: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func bindValuationRow(row persistence.ParcelValuationRow) (map[string]interface{}, error) {
	payloadJSON, err := json.Marshal(row.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal valuation payload: %w", err)
	}
	return map[string]interface{}{
		"town_id":               row.TownID,
		"loc_id":                row.LocID,
		"market_value":          row.MarketValue,
		"market_value_per_sqft": row.MarketValuePerSqft,
		"comparable_value":      row.ComparableValue,
		"comparable_count":      row.ComparableCount,
		"comparable_avg_psf":    row.ComparableAvgPSF,
		"hedonic_value":         row.HedonicValue,
		"hedonic_r2":            row.HedonicR2,
		"confidence":            row.Confidence,
		"methodology":           row.Methodology,
		"model_version":         row.ModelVersion,
		"run_id":                row.RunID,
		"valued_at":             row.ValuedAt,
		"payload":               payloadJSON,
	}, nil
}

func scanValuationRow(scanner rowScanner) (*persistence.ParcelValuationRow, error) {
	var row persistence.ParcelValuationRow
	var payloadJSON []byte

	err := scanner.Scan(
		&row.TownID, &row.LocID, &row.MarketValue, &row.MarketValuePerSqft,
		&row.ComparableValue, &row.ComparableCount, &row.ComparableAvgPSF,
		&row.HedonicValue, &row.HedonicR2, &row.Confidence, &row.Methodology,
		&row.ModelVersion, &row.RunID, &row.ValuedAt, &payloadJSON)
	if err != nil {
		return nil, err
	}

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &row.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal valuation payload: %w", err)
		}
	}
	return &row, nil
}
