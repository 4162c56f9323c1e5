package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence"
)

func sampleStatsRow() persistence.TownStatsRow {
	psf := 265.4
	r2 := 0.73
	return persistence.TownStatsRow{
		TownID:         42,
		GlobalPSF:      &psf,
		SaleCount:      180,
		ParcelCount:    5200,
		ValuedCount:    5010,
		CompCoverage:   0.88,
		ModelAvailable: true,
		ModelR2:        &r2,
		ModelVersion:   "hybrid-v1.0",
		RunID:          "run-1",
		ComputedAt:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestTownStatsUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTownStatsRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO town_valuation_stats").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), sampleStatsRow())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTownStatsGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTownStatsRepo(db, time.Second)

	computedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"town_id", "global_psf", "sale_count", "parcel_count", "valued_count",
		"comp_coverage", "model_available", "model_r2", "model_version",
		"run_id", "computed_at",
	}).AddRow(42, 265.4, 180, 5200, 5010, 0.88, true, 0.73, "hybrid-v1.0",
		"run-1", computedAt)

	mock.ExpectQuery("SELECT (.+) FROM town_valuation_stats").
		WithArgs(42).
		WillReturnRows(rows)

	row, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 42, row.TownID)
	require.NotNil(t, row.GlobalPSF)
	assert.InDelta(t, 265.4, *row.GlobalPSF, 1e-9)
	assert.True(t, row.ModelAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTownStatsGetAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTownStatsRepo(db, time.Second)

	mock.ExpectQuery("SELECT (.+) FROM town_valuation_stats").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"town_id"}))

	row, err := repo.Get(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTownStatsList(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTownStatsRepo(db, time.Second)

	computedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"town_id", "global_psf", "sale_count", "parcel_count", "valued_count",
		"comp_coverage", "model_available", "model_r2", "model_version",
		"run_id", "computed_at",
	}).
		AddRow(1, 250.0, 90, 3000, 2800, 0.8, true, 0.7, "hybrid-v1.0", "run-1", computedAt).
		AddRow(2, nil, 0, 1200, 0, 0.0, false, nil, "hybrid-v1.0", "run-1", computedAt)

	mock.ExpectQuery("SELECT (.+) FROM town_valuation_stats").
		WillReturnRows(rows)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].TownID)
	assert.Nil(t, list[1].GlobalPSF)
	assert.False(t, list[1].ModelAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
