package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func sampleValuationRow() persistence.ParcelValuationRow {
	value := 412000.0
	psf := 274.6
	return persistence.ParcelValuationRow{
		TownID:           42,
		LocID:            "M100",
		MarketValue:      &value,
		ComparableCount:  4,
		ComparableAvgPSF: &psf,
		Confidence:       0.82,
		Methodology:      "hybrid_comps_hedonic",
		ModelVersion:     "hybrid-v1.0",
		RunID:            "run-1",
		ValuedAt:         time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Payload:          map[string]interface{}{"provenance": []interface{}{"comps"}},
	}
}

func TestUpsertBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewValuationRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO parcel_valuations").
		WillReturnResult(sqlmock.NewResult(0, 2))

	rows := []persistence.ParcelValuationRow{sampleValuationRow(), sampleValuationRow()}
	rows[1].LocID = "M101"

	err := repo.UpsertBatch(context.Background(), rows)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchEmptyIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewValuationRepo(db, time.Second)

	require.NoError(t, repo.UpsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByParcel(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewValuationRepo(db, time.Second)

	valuedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"town_id", "loc_id", "market_value", "market_value_per_sqft",
		"comparable_value", "comparable_count", "comparable_avg_psf",
		"hedonic_value", "hedonic_r2", "confidence", "methodology",
		"model_version", "run_id", "valued_at", "payload",
	}).AddRow(42, "M100", 412000.0, 274.6, 405000.0, 4, 270.1,
		430000.0, 0.74, 0.82, "hybrid_comps_hedonic", "hybrid-v1.0",
		"run-1", valuedAt, []byte(`{"provenance":["comps","hedonic"]}`))

	mock.ExpectQuery("SELECT (.+) FROM parcel_valuations").
		WithArgs(42, "M100").
		WillReturnRows(rows)

	row, err := repo.GetByParcel(context.Background(), 42, "M100")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "M100", row.LocID)
	require.NotNil(t, row.MarketValue)
	assert.InDelta(t, 412000, *row.MarketValue, 1e-9)
	assert.Equal(t, 4, row.ComparableCount)
	require.Contains(t, row.Payload, "provenance")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByParcelAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewValuationRepo(db, time.Second)

	mock.ExpectQuery("SELECT (.+) FROM parcel_valuations").
		WithArgs(42, "NOPE").
		WillReturnRows(sqlmock.NewRows([]string{"town_id"}))

	row, err := repo.GetByParcel(context.Background(), 42, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByTown(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewValuationRepo(db, time.Second)

	valuedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"town_id", "loc_id", "market_value", "market_value_per_sqft",
		"comparable_value", "comparable_count", "comparable_avg_psf",
		"hedonic_value", "hedonic_r2", "confidence", "methodology",
		"model_version", "run_id", "valued_at", "payload",
	}).
		AddRow(42, "M200", 500000.0, nil, nil, 0, nil, 500000.0, 0.7, 0.7,
			"hybrid_comps_hedonic", "hybrid-v1.0", "run-1", valuedAt, nil).
		AddRow(42, "M100", 412000.0, nil, nil, 4, nil, nil, nil, 0.82,
			"hybrid_comps_hedonic", "hybrid-v1.0", "run-1", valuedAt, nil)

	mock.ExpectQuery("SELECT (.+) FROM parcel_valuations").
		WithArgs(42, 100).
		WillReturnRows(rows)

	list, err := repo.ListByTown(context.Background(), 42, 100)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "M200", list[0].LocID)
	assert.Nil(t, list[1].HedonicValue)
	assert.Nil(t, list[0].Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoverage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewValuationRepo(db, time.Second)

	rows := sqlmock.NewRows([]string{
		"parcel_count", "valued_count", "with_comps", "with_hedonic", "mean_confidence",
	}).AddRow(1000, 940, 870, 910, 0.71)

	mock.ExpectQuery("SELECT (.+) FROM parcel_valuations").
		WithArgs(42).
		WillReturnRows(rows)

	stats, err := repo.Coverage(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1000, stats.ParcelCount)
	assert.Equal(t, 940, stats.ValuedCount)
	assert.Equal(t, 870, stats.WithComps)
	assert.Equal(t, 910, stats.WithHedonic)
	assert.InDelta(t, 0.71, stats.MeanConfidence, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
