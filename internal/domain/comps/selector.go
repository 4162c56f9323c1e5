// Package comps selects and ranks comparable sales for a subject parcel.
package comps

import (
	"sort"
	"time"

	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/parcel"
)

// Sale prices outside this band are treated as non-arm's-length transfers
// (nominal $1 deeds, bundled portfolio sales) and never qualify as comps.
const (
	MinSalePrice = 100.0
	MaxSalePrice = 25_000_000.0
)

// Similarity weighting. Distance is a sum of penalties; smaller is more
// similar. The weights are tunable constants so the ranking policy is
// explicit rather than buried in the scoring code.
const (
	RelativeGapCap        = 0.5 // cap on each size-difference term
	LotSizeWeight         = 0.7 // lot size matters less than building area
	StyleMismatchPenalty  = 0.2
	ZoningMismatchPenalty = 0.1
	MaxRecencyPenalty     = 0.4
)

// Comparable is one qualifying sale ranked against a subject. It carries the
// evidence persisted alongside the valuation.
type Comparable struct {
	LocID        string    `json:"loc_id"`
	SalePrice    float64   `json:"sale_price"`
	SaleDate     time.Time `json:"sale_date"`
	BuildingArea *float64  `json:"building_area,omitempty"`
	LotSize      *float64  `json:"lot_size,omitempty"`
	Style        string    `json:"style,omitempty"`
	PSF          *float64  `json:"psf,omitempty"`
	Weight       float64   `json:"weight"`
	Distance     float64   `json:"distance"`
}

// RecentSales filters records down to those usable as comparable evidence:
// a sale price inside the plausible band and a sale date within the lookback
// window of asOf.
func RecentSales(records []parcel.CleanRecord, asOf time.Time, lookbackDays int) []parcel.CleanRecord {
	cutoff := asOf.AddDate(0, 0, -lookbackDays)
	sales := make([]parcel.CleanRecord, 0, len(records))
	for _, record := range records {
		if record.SalePrice == nil || record.SaleDate == nil {
			continue
		}
		if *record.SalePrice < MinSalePrice || *record.SalePrice > MaxSalePrice {
			continue
		}
		if record.SaleDate.Before(cutoff) || record.SaleDate.After(asOf) {
			continue
		}
		sales = append(sales, record)
	}
	return sales
}

// Select returns up to targetCount comparables for the subject, most similar
// first. Candidates must share the subject's use code exactly; the subject
// itself is never a candidate. An empty result is a normal outcome, not an
// error. Ordering is a strict total order (distance, then loc_id) so repeated
// runs over the same pool produce identical sets.
func Select(subject parcel.CleanRecord, pool []parcel.CleanRecord, asOf time.Time, lookbackDays, targetCount int) []Comparable {
	if targetCount <= 0 {
		return nil
	}

	qualifying := make([]Comparable, 0, len(pool))
	for _, candidate := range pool {
		if candidate.LocID == subject.LocID {
			continue
		}
		if candidate.UseCode == "" || candidate.UseCode != subject.UseCode {
			continue
		}
		if candidate.SalePrice == nil || candidate.SaleDate == nil {
			continue
		}
		if *candidate.SalePrice < MinSalePrice || *candidate.SalePrice > MaxSalePrice {
			continue
		}
		cutoff := asOf.AddDate(0, 0, -lookbackDays)
		if candidate.SaleDate.Before(cutoff) || candidate.SaleDate.After(asOf) {
			continue
		}

		dist := distance(subject, candidate, asOf, lookbackDays)
		qualifying = append(qualifying, Comparable{
			LocID:        candidate.LocID,
			SalePrice:    *candidate.SalePrice,
			SaleDate:     *candidate.SaleDate,
			BuildingArea: candidate.BuildingArea,
			LotSize:      candidate.LotSize,
			Style:        candidate.Style,
			PSF:          candidate.SalePricePerSqft(),
			Weight:       1.0 / (1.0 + dist),
			Distance:     dist,
		})
	}

	sort.Slice(qualifying, func(i, j int) bool {
		if qualifying[i].Distance != qualifying[j].Distance {
			return qualifying[i].Distance < qualifying[j].Distance
		}
		return qualifying[i].LocID < qualifying[j].LocID
	})

	if len(qualifying) > targetCount {
		qualifying = qualifying[:targetCount]
	}
	return qualifying
}

// distance scores how dissimilar a candidate sale is from the subject.
// Building-area and lot-size gaps dominate; style and zoning mismatches and
// sale age add fixed penalties. An exact style match therefore outranks a
// mismatch at equal size difference.
func distance(subject, candidate parcel.CleanRecord, asOf time.Time, lookbackDays int) float64 {
	dist := relativeGap(candidate.BuildingArea, subject.BuildingArea)
	dist += relativeGap(candidate.LotSize, subject.LotSize) * LotSizeWeight
	if candidate.Style != "" && subject.Style != "" && candidate.Style != subject.Style {
		dist += StyleMismatchPenalty
	}
	if candidate.Zoning != "" && subject.Zoning != "" && candidate.Zoning != subject.Zoning {
		dist += ZoningMismatchPenalty
	}
	if candidate.SaleDate != nil && lookbackDays > 0 {
		ageDays := asOf.Sub(*candidate.SaleDate).Hours() / 24
		penalty := ageDays / float64(lookbackDays)
		if penalty > MaxRecencyPenalty {
			penalty = MaxRecencyPenalty
		}
		if penalty > 0 {
			dist += penalty
		}
	}
	return dist
}

// relativeGap measures |a-b| relative to the larger value, capped so a single
// wild field cannot dominate the ranking. A missing value scores the full cap.
func relativeGap(a, b *float64) float64 {
	if a == nil || b == nil || *a <= 0 || *b <= 0 {
		return RelativeGapCap
	}
	larger := *a
	if *b > larger {
		larger = *b
	}
	gap := *a - *b
	if gap < 0 {
		gap = -gap
	}
	gap /= larger
	if gap > RelativeGapCap {
		return RelativeGapCap
	}
	return gap
}
