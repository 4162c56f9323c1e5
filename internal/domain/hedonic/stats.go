// Package hedonic fits a structural price regression over recent sales and
// computes the per-market statistics that back it up.
package hedonic

import (
	"sort"
	"strings"

	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/parcel"
)

// MarketStats holds batch-wide aggregates computed over the valid recent
// sales. GlobalPSF is the fallback of last resort when neither comps nor the
// model cover a subject; the medians feed feature imputation during fitting.
type MarketStats struct {
	GlobalPSF           *float64           `json:"global_psf,omitempty"`
	CategoryPSF         map[string]float64 `json:"category_psf,omitempty"`
	StylePSF            map[string]float64 `json:"style_psf,omitempty"`
	MedianAssessedValue float64            `json:"median_assessed_value"`
	MedianBuildingArea  float64            `json:"median_building_area"`
	MedianLotSize       float64            `json:"median_lot_size"`
	MedianYearBuilt     float64            `json:"median_year_built"`
	SaleCount           int                `json:"sale_count"`
}

// BuildStats computes MarketStats from the recent-sales working set. All
// aggregates are medians; an empty input yields zero medians and a nil
// GlobalPSF.
func BuildStats(sales []parcel.CleanRecord) MarketStats {
	stats := MarketStats{
		MedianYearBuilt: 1980, // neutral default when no sale reports a year
		SaleCount:       len(sales),
		CategoryPSF:     map[string]float64{},
		StylePSF:        map[string]float64{},
	}

	var assessed, areas, lots, years, psf []float64
	categoryGroups := map[string][]float64{}
	styleGroups := map[string][]float64{}

	for _, sale := range sales {
		if sale.AssessedValue != nil {
			assessed = append(assessed, *sale.AssessedValue)
		}
		if sale.BuildingArea != nil {
			areas = append(areas, *sale.BuildingArea)
		}
		if sale.LotSize != nil {
			lots = append(lots, *sale.LotSize)
		}
		if sale.YearBuilt != nil {
			years = append(years, float64(*sale.YearBuilt))
		}
		if p := sale.SalePricePerSqft(); p != nil {
			psf = append(psf, *p)
			categoryGroups[sale.Category] = append(categoryGroups[sale.Category], *p)
			if sale.Style != "" {
				key := strings.ToLower(sale.Style)
				styleGroups[key] = append(styleGroups[key], *p)
			}
		}
	}

	if len(assessed) > 0 {
		stats.MedianAssessedValue = median(assessed)
	}
	if len(areas) > 0 {
		stats.MedianBuildingArea = median(areas)
	}
	if len(lots) > 0 {
		stats.MedianLotSize = median(lots)
	}
	if len(years) > 0 {
		stats.MedianYearBuilt = median(years)
	}
	if len(psf) > 0 {
		globalPSF := median(psf)
		stats.GlobalPSF = &globalPSF
	}
	for key, values := range categoryGroups {
		stats.CategoryPSF[key] = median(values)
	}
	for key, values := range styleGroups {
		stats.StylePSF[key] = median(values)
	}
	return stats
}

// StylePrice returns the median PSF for the given style, falling back to the
// global PSF when the style is unseen.
func (s MarketStats) StylePrice(style string) *float64 {
	if style != "" {
		if v, ok := s.StylePSF[strings.ToLower(style)]; ok {
			return &v
		}
	}
	return s.GlobalPSF
}

// CategoryPrice is StylePrice for property categories.
func (s MarketStats) CategoryPrice(category string) *float64 {
	if category != "" {
		if v, ok := s.CategoryPSF[category]; ok {
			return &v
		}
	}
	return s.GlobalPSF
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
