// Package valuation blends comparable-sales and hedonic estimates into one
// market value per parcel with a bounded confidence score.
package valuation

import (
	"sort"

	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/comps"
	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/hedonic"
	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/parcel"
)

// Provenance labels recorded on each valuation, naming which estimators
// contributed to the final number.
const (
	SourceComps    = "comps"
	SourceHedonic  = "hedonic"
	SourceFallback = "global_psf"
)

// Blend policy constants. Comp weight grows linearly with comp strength
// (count / target), so more comparables always pull the blend toward actual
// transactions; the hedonic weight is additionally discounted by model fit.
const (
	compWeightBase     = 0.45
	compWeightSlope    = 0.35
	modelWeightBase    = 0.55
	confidenceCeiling  = 0.95
	compOnlyCeiling    = 0.90
	hedonicOnlyFloor   = 0.25
	fallbackConfidence = 0.20
	areaRescaleFloor   = 0.5
	areaRescaleCeiling = 1.5
)

// Valuation is the engine's output row for one subject parcel. Immutable
// once built.
type Valuation struct {
	LocID              string              `json:"loc_id"`
	MarketValue        *float64            `json:"market_value,omitempty"`
	MarketValuePerSqft *float64            `json:"market_value_per_sqft,omitempty"`
	ComparableValue    *float64            `json:"comparable_value,omitempty"`
	ComparableCount    int                 `json:"comparable_count"`
	ComparableAvgPSF   *float64            `json:"comparable_avg_psf,omitempty"`
	HedonicValue       *float64            `json:"hedonic_value,omitempty"`
	HedonicR2          *float64            `json:"hedonic_r2,omitempty"`
	Confidence         float64             `json:"confidence"`
	Provenance         []string            `json:"provenance,omitempty"`
	Comparables        []comps.Comparable  `json:"comparables,omitempty"`
	Inputs             map[string]*float64 `json:"inputs,omitempty"`
}

// Value produces the blended valuation for one subject. Pure function of its
// inputs; a subject that no estimator covers yields a nil market value and
// zero confidence rather than an error.
func Value(subject parcel.CleanRecord, comparables []comps.Comparable, model *hedonic.Model, stats hedonic.MarketStats, targetCompCount int) Valuation {
	result := Valuation{
		LocID:           subject.LocID,
		ComparableCount: len(comparables),
		Comparables:     comparables,
		Inputs:          inputsSnapshot(subject),
	}

	compValue, compAvgPSF := comparableValue(subject, comparables)
	result.ComparableValue = compValue
	result.ComparableAvgPSF = compAvgPSF

	hedonicValue := model.Predict(subject, stats)
	result.HedonicValue = hedonicValue
	if model != nil {
		r2 := model.R2
		result.HedonicR2 = &r2
	}

	switch {
	case compValue != nil && hedonicValue != nil:
		value, confidence := blend(subject, *compValue, len(comparables), *hedonicValue, model.R2, targetCompCount)
		result.MarketValue = &value
		result.Confidence = confidence
		result.Provenance = []string{SourceComps, SourceHedonic}
	case compValue != nil:
		confidence := compOnlyCeiling
		if c := 0.4 + 0.1*float64(len(comparables)); c < confidence {
			confidence = c
		}
		result.MarketValue = compValue
		result.Confidence = confidence
		result.Provenance = []string{SourceComps}
	case hedonicValue != nil:
		confidence := hedonicOnlyFloor
		if model.R2 > confidence {
			confidence = model.R2
		}
		result.MarketValue = hedonicValue
		result.Confidence = confidence
		result.Provenance = []string{SourceHedonic}
	default:
		if stats.GlobalPSF != nil && subject.BuildingArea != nil && *subject.BuildingArea > 0 {
			value := *stats.GlobalPSF * *subject.BuildingArea
			result.MarketValue = &value
			result.Confidence = fallbackConfidence
			result.Provenance = []string{SourceFallback}
		}
		// otherwise unvaluable: nil value, confidence 0
	}

	if result.MarketValue != nil {
		if subject.BuildingArea != nil && *subject.BuildingArea > 0 {
			psf := *result.MarketValue / *subject.BuildingArea
			result.MarketValuePerSqft = &psf
		} else if compAvgPSF != nil {
			result.MarketValuePerSqft = compAvgPSF
		}
	}
	return result
}

// comparableValue derives the comp estimate: the median of comp sale prices
// after rescaling each by the subject/comp building-area ratio (clamped so a
// size mismatch cannot more than halve or 1.5x a price). The median resists
// single-outlier distortion in small comp sets. The distance-weighted mean
// PSF rides along as supporting evidence.
func comparableValue(subject parcel.CleanRecord, comparables []comps.Comparable) (*float64, *float64) {
	if len(comparables) == 0 {
		return nil, nil
	}

	scaled := make([]float64, 0, len(comparables))
	var psfWeighted, psfWeights float64
	for _, comp := range comparables {
		if comp.SalePrice <= 0 {
			continue
		}
		price := comp.SalePrice
		if subject.BuildingArea != nil && comp.BuildingArea != nil && *comp.BuildingArea > 0 {
			ratio := *subject.BuildingArea / *comp.BuildingArea
			if ratio < areaRescaleFloor {
				ratio = areaRescaleFloor
			}
			if ratio > areaRescaleCeiling {
				ratio = areaRescaleCeiling
			}
			price *= ratio
		}
		scaled = append(scaled, price)
		if comp.PSF != nil {
			psfWeighted += *comp.PSF * comp.Weight
			psfWeights += comp.Weight
		}
	}
	if len(scaled) == 0 {
		return nil, nil
	}

	sort.Float64s(scaled)
	mid := len(scaled) / 2
	value := scaled[mid]
	if len(scaled)%2 == 0 {
		value = (scaled[mid-1] + scaled[mid]) / 2
	}

	var avgPSF *float64
	if psfWeights > 0 {
		v := psfWeighted / psfWeights
		avgPSF = &v
	}
	return &value, avgPSF
}

// blend combines the two estimates. Comp strength saturates at the target
// count; the confidence floor is the hedonic-only tier, so adding comps never
// lowers confidence.
func blend(subject parcel.CleanRecord, compValue float64, compCount int, hedonicValue, r2 float64, targetCompCount int) (float64, float64) {
	compStrength := float64(compCount) / float64(targetCompCount)
	if compStrength > 1 {
		compStrength = 1
	}

	compWeight := compWeightBase + compWeightSlope*compStrength
	modelWeight := (modelWeightBase - compWeightSlope*compStrength) * (0.5 + 0.5*r2)
	total := compWeight + modelWeight
	compWeight /= total
	modelWeight /= total

	value := compWeight*compValue + modelWeight*hedonicValue

	confidence := 0.5*compStrength + 0.3*r2 + 0.2*coverageScore(subject)
	if floor := hedonicOnlyConfidence(r2); confidence < floor {
		confidence = floor
	}
	if confidence > confidenceCeiling {
		confidence = confidenceCeiling
	}
	return value, confidence
}

func hedonicOnlyConfidence(r2 float64) float64 {
	if r2 > hedonicOnlyFloor {
		return r2
	}
	return hedonicOnlyFloor
}

// coverageScore measures how completely the subject's structural fields are
// populated; sparse records earn less confidence in their blended value.
func coverageScore(record parcel.CleanRecord) float64 {
	filled := 0
	if record.AssessedValue != nil {
		filled++
	}
	if record.BuildingArea != nil {
		filled++
	}
	if record.LotSize != nil {
		filled++
	}
	if record.YearBuilt != nil {
		filled++
	}
	return float64(filled) / 4
}

func inputsSnapshot(record parcel.CleanRecord) map[string]*float64 {
	var year *float64
	if record.YearBuilt != nil {
		y := float64(*record.YearBuilt)
		year = &y
	}
	return map[string]*float64{
		"assessed_value": record.AssessedValue,
		"building_area":  record.BuildingArea,
		"lot_size":       record.LotSize,
		"year_built":     year,
	}
}
