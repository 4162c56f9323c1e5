package engine

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/parcel"
	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/valuation"
)

var asOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(Config{LookbackDays: 365, TargetCompCount: 5, Regularization: 0.35})
	require.NoError(t, err)
	return eng
}

// townFixture builds a small residential market: every parcel sold recently,
// sizes and prices grow together so the hedonic fit has signal.
func townFixture() []parcel.CleanRecord {
	records := make([]parcel.CleanRecord, 0, 10)
	for i := 0; i < 10; i++ {
		area := 1200.0 + float64(i)*150
		price := area*210 + 15000
		date := asOf.AddDate(0, 0, -(20 + i*10))
		records = append(records, parcel.CleanRecord{
			LocID:         fmt.Sprintf("P%02d", i),
			UseCode:       "101",
			Category:      "Residential",
			Style:         "Colonial",
			AssessedValue: parcel.Float(price * 0.9),
			BuildingArea:  parcel.Float(area),
			LotSize:       parcel.Float(area * 5),
			YearBuilt:     parcel.Int(1950 + i*5),
			SalePrice:     parcel.Float(price),
			SaleDate:      &date,
		})
	}
	return records
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{LookbackDays: 0, TargetCompCount: 5})
	assert.Error(t, err)

	_, err = New(Config{LookbackDays: 365, TargetCompCount: 0})
	assert.Error(t, err)

	_, err = New(Config{LookbackDays: 365, TargetCompCount: 5, Regularization: -1})
	assert.Error(t, err)
}

func TestNewFloorsKnobs(t *testing.T) {
	eng, err := New(Config{LookbackDays: 5, TargetCompCount: 1, Regularization: 0.001})
	require.NoError(t, err)
	assert.Equal(t, minLookbackDays, eng.LookbackDays())
	assert.Equal(t, minTargetComps, eng.TargetCompCount())
	assert.InDelta(t, minRegularization, eng.regularization, 1e-12)
}

func TestNewDefaultsRegularization(t *testing.T) {
	eng, err := New(Config{LookbackDays: 365, TargetCompCount: 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.35, eng.regularization, 1e-12)
}

func TestComputeFullMarket(t *testing.T) {
	eng := newTestEngine(t)
	records := townFixture()

	valuations, model, stats := eng.Compute(records, asOf)
	require.Len(t, valuations, len(records))
	require.NotNil(t, model)
	require.NotNil(t, stats.GlobalPSF)
	assert.Equal(t, len(records), stats.SaleCount)

	for i, val := range valuations {
		assert.Equal(t, records[i].LocID, val.LocID, "output must preserve input order")
		require.NotNil(t, val.MarketValue, "parcel %s should be valued", val.LocID)
		assert.Greater(t, *val.MarketValue, 0.0)
		assert.Greater(t, val.Confidence, 0.0)
		assert.LessOrEqual(t, val.Confidence, 0.95)
		assert.Equal(t, []string{valuation.SourceComps, valuation.SourceHedonic}, val.Provenance)
		assert.LessOrEqual(t, val.ComparableCount, eng.TargetCompCount())
		assert.Greater(t, val.ComparableCount, 0)
		require.NotNil(t, val.HedonicValue)
	}
}

func TestComputeThinMarket(t *testing.T) {
	eng := newTestEngine(t)
	records := townFixture()[:3]

	valuations, model, _ := eng.Compute(records, asOf)
	require.Len(t, valuations, 3)
	require.NotNil(t, model, "three sales should still fit a regularized model")
	for _, val := range valuations {
		require.NotNil(t, val.MarketValue)
		require.NotNil(t, val.HedonicValue)
	}
}

func TestComputeThreeParcelTown(t *testing.T) {
	eng := newTestEngine(t)

	sale := func(locID string, lot, area, price float64, daysAgo int) parcel.CleanRecord {
		date := asOf.AddDate(0, 0, -daysAgo)
		return parcel.CleanRecord{
			LocID:         locID,
			UseCode:       "101",
			Category:      "Residential",
			AssessedValue: parcel.Float(price * 0.9),
			BuildingArea:  parcel.Float(area),
			LotSize:       parcel.Float(lot),
			SalePrice:     parcel.Float(price),
			SaleDate:      &date,
		}
	}
	records := []parcel.CleanRecord{
		sale("L1", 6000, 1500, 350000, 40),
		sale("L2", 5800, 1550, 340000, 90),
		sale("L3", 6200, 1600, 365000, 150),
	}

	valuations, model, _ := eng.Compute(records, asOf)
	require.Len(t, valuations, 3)
	require.NotNil(t, model)

	first := valuations[0]
	assert.Equal(t, "L1", first.LocID)
	assert.Greater(t, first.ComparableCount, 0)
	require.NotNil(t, first.HedonicValue)
	require.NotNil(t, first.MarketValue)
	assert.Greater(t, first.Confidence, 0.0)
}

func TestComputeFallbackWhenModelUnfittable(t *testing.T) {
	eng := newTestEngine(t)

	// two sales: enough for a global PSF but below the model's minimum
	records := townFixture()[:2]
	industrial := parcel.CleanRecord{
		LocID:        "IND1",
		UseCode:      "400",
		Category:     "Industrial",
		BuildingArea: parcel.Float(2000),
	}
	records = append(records, industrial)

	valuations, model, stats := eng.Compute(records, asOf)
	assert.Nil(t, model)
	require.NotNil(t, stats.GlobalPSF)

	last := valuations[len(valuations)-1]
	assert.Equal(t, "IND1", last.LocID)
	assert.Zero(t, last.ComparableCount)
	require.NotNil(t, last.MarketValue)
	assert.InDelta(t, *stats.GlobalPSF*2000, *last.MarketValue, 1e-6)
	assert.Equal(t, []string{valuation.SourceFallback}, last.Provenance)
	assert.InDelta(t, 0.2, last.Confidence, 1e-12)
}

func TestComputeEmptyInput(t *testing.T) {
	eng := newTestEngine(t)
	valuations, model, stats := eng.Compute(nil, asOf)
	assert.Empty(t, valuations)
	assert.Nil(t, model)
	assert.Nil(t, stats.GlobalPSF)
}

func TestComputeNoSalesDegrades(t *testing.T) {
	eng := newTestEngine(t)

	// assessed values only: no sales, no model, no global PSF
	records := []parcel.CleanRecord{
		{LocID: "A", UseCode: "101", Category: "Residential", AssessedValue: parcel.Float(300000)},
		{LocID: "B", UseCode: "101", Category: "Residential", AssessedValue: parcel.Float(350000)},
	}

	valuations, model, stats := eng.Compute(records, asOf)
	require.Len(t, valuations, 2)
	assert.Nil(t, model)
	assert.Nil(t, stats.GlobalPSF)
	for _, val := range valuations {
		assert.Nil(t, val.MarketValue)
		assert.Zero(t, val.Confidence)
	}
}

func TestComputeUseCodeIsolation(t *testing.T) {
	eng := newTestEngine(t)
	records := townFixture()

	// a commercial subject gets no residential comps but still a model value
	commercial := parcel.CleanRecord{
		LocID:         "COMM1",
		UseCode:       "300",
		Category:      "Commercial",
		AssessedValue: parcel.Float(500000),
		BuildingArea:  parcel.Float(2000),
		LotSize:       parcel.Float(10000),
	}
	records = append(records, commercial)

	valuations, _, _ := eng.Compute(records, asOf)
	last := valuations[len(valuations)-1]
	assert.Equal(t, "COMM1", last.LocID)
	assert.Zero(t, last.ComparableCount)
	require.NotNil(t, last.MarketValue)
	assert.Equal(t, []string{valuation.SourceHedonic}, last.Provenance)
}

func TestComputeStaleSalesExcluded(t *testing.T) {
	eng := newTestEngine(t)

	records := townFixture()
	for i := range records {
		stale := asOf.AddDate(-3, 0, 0)
		records[i].SaleDate = &stale
	}

	valuations, model, stats := eng.Compute(records, asOf)
	assert.Nil(t, model)
	assert.Nil(t, stats.GlobalPSF)
	require.Len(t, valuations, len(records))
	for _, val := range valuations {
		assert.Zero(t, val.ComparableCount)
	}
}

func TestComputeDeterministic(t *testing.T) {
	eng := newTestEngine(t)
	records := townFixture()

	first, _, _ := eng.Compute(records, asOf)
	second, _, _ := eng.Compute(records, asOf)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON, "identical inputs must produce identical output")
}

func TestNormalizePassthrough(t *testing.T) {
	eng := newTestEngine(t)
	raws := []parcel.RawRecord{
		{"LOC_ID": "M-1", "TOTAL_VAL": "250000"},
	}
	cleaned := eng.Normalize(raws, asOf)
	require.Len(t, cleaned, 1)
	assert.Equal(t, "M1", cleaned[0].LocID)
}
