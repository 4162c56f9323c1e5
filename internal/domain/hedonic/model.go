package hedonic

import (
	"math"

	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/parcel"
)

// FeatureNames documents the design-matrix columns in order. The bias column
// makes the regression affine; log1p transforms tame the heavy right tails of
// value and size fields.
var FeatureNames = []string{
	"bias",
	"log_assessed_value",
	"log_building_area",
	"log_lot_size",
	"year_score",
	"style_psf",
	"category_psf",
}

// MinTrainingSales is the smallest working set the fitter will accept. Ridge
// regularization keeps the normal equations positive definite even when the
// set is smaller than the feature count, so thin markets still get a model;
// below this floor there is no meaningful signal at all.
const MinTrainingSales = 3

// DefaultRegularization is the ridge lambda applied to the normal equations.
const DefaultRegularization = 0.35

// Model is an immutable fitted hedonic regression. It is built once per batch
// and discarded with it; only the version label of the fitting approach is
// persisted downstream.
type Model struct {
	Coefficients []float64 `json:"coefficients"`
	R2           float64   `json:"r2"`
	TrainingSize int       `json:"training_size"`
}

// Fit trains the regression on the recent-sales working set. It returns nil
// when the set is too small or the (regularized) normal equations are still
// numerically singular; callers degrade to comps and global statistics.
func Fit(sales []parcel.CleanRecord, stats MarketStats, regularization float64) *Model {
	if regularization <= 0 {
		regularization = DefaultRegularization
	}
	if len(sales) < MinTrainingSales {
		return nil
	}

	var rows [][]float64
	var prices []float64
	for _, sale := range sales {
		if sale.SalePrice == nil {
			continue
		}
		if sale.LotSize == nil && sale.BuildingArea == nil {
			continue
		}
		rows = append(rows, featureVector(sale, stats))
		prices = append(prices, *sale.SalePrice)
	}
	if len(rows) < MinTrainingSales {
		return nil
	}

	coefficients := solveRidge(rows, prices, regularization)
	if coefficients == nil {
		return nil
	}

	// R-squared over the training set, clamped so a perfect in-sample fit
	// never reads as full certainty downstream.
	var priceMean float64
	for _, p := range prices {
		priceMean += p
	}
	priceMean /= float64(len(prices))

	var ssTotal, ssResidual float64
	for i, row := range rows {
		predicted := dot(row, coefficients)
		ssResidual += (prices[i] - predicted) * (prices[i] - predicted)
		ssTotal += (prices[i] - priceMean) * (prices[i] - priceMean)
	}
	r2 := 0.0
	if ssTotal > 0 {
		r2 = 1 - ssResidual/ssTotal
		if r2 < 0 {
			r2 = 0
		}
		if r2 > 0.999 {
			r2 = 0.999
		}
	}

	return &Model{Coefficients: coefficients, R2: r2, TrainingSize: len(rows)}
}

// Predict evaluates the model on a subject's features. Missing structural
// fields are imputed from the market medians, so a fitted model covers every
// subject in the batch.
func (m *Model) Predict(record parcel.CleanRecord, stats MarketStats) *float64 {
	if m == nil || len(m.Coefficients) != len(FeatureNames) {
		return nil
	}
	value := dot(featureVector(record, stats), m.Coefficients)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return &value
}

func featureVector(record parcel.CleanRecord, stats MarketStats) []float64 {
	assessed := orDefault(record.AssessedValue, stats.MedianAssessedValue, 1)
	area := orDefault(record.BuildingArea, stats.MedianBuildingArea, 1)
	lot := orDefault(record.LotSize, stats.MedianLotSize, 1)

	year := stats.MedianYearBuilt
	if record.YearBuilt != nil {
		year = float64(*record.YearBuilt)
	}

	stylePSF := psfOrDefault(stats.StylePrice(record.Style), stats)
	categoryPSF := psfOrDefault(stats.CategoryPrice(record.Category), stats)

	return []float64{
		1,
		math.Log1p(assessed),
		math.Log1p(area),
		math.Log1p(lot),
		(year - 1950) / 100,
		math.Log1p(stylePSF),
		math.Log1p(categoryPSF),
	}
}

func orDefault(value *float64, fallback, floor float64) float64 {
	if value != nil && *value > 0 {
		return *value
	}
	if fallback > 0 {
		return fallback
	}
	return floor
}

func psfOrDefault(value *float64, stats MarketStats) float64 {
	if value != nil && *value > 0 {
		return *value
	}
	if stats.GlobalPSF != nil && *stats.GlobalPSF > 0 {
		return *stats.GlobalPSF
	}
	return 100 // neutral PSF when the market has no price evidence at all
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
