package parcel

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Year-built values outside this window are treated as data-entry noise.
const (
	minPlausibleYearBuilt = 1600
	yearBuiltFutureSlack  = 2
)

var nonNumericChars = regexp.MustCompile(`[^\d.\-]`)

// Known sale-date layouts across municipal exports. A bare year resolves to
// January 1st of that year.
var saleDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"20060102",
	"01/02/06",
	"2006",
}

// Normalize coerces raw assessor rows into CleanRecords. Rows without an
// identifier, or without any value proxy, are skipped; unparsable fields are
// nulled rather than failing the row. The asOf time bounds year-built sanity
// checks so the pass stays deterministic.
func Normalize(raws []RawRecord, asOf time.Time) []CleanRecord {
	cleaned := make([]CleanRecord, 0, len(raws))
	for _, raw := range raws {
		locID := NormalizeLocID(raw.Field("LOC_ID", "PAR_ID", "PROP_ID"))
		if locID == "" {
			continue
		}

		record := CleanRecord{
			LocID:         locID,
			AssessedValue: ParseFloat(raw.Field("MARKET_VALUE", "TOTAL_VAL", "TOTAL_VALUE")),
			LandValue:     ParseFloat(raw.Field("LAND_VAL", "LAND_VALUE")),
			BuildingValue: ParseFloat(raw.Field("BLDG_VAL", "BLDG_VALUE")),
			LotSize:       ParseFloat(raw.Field("LOT_SIZE", "LAND_SF")),
			BuildingArea:  ParseFloat(raw.Field("BLD_AREA", "LIVING_AREA", "LIV_AREA")),
			UseCode:       raw.Field("USE_CODE", "LUC"),
			Style:         raw.Field("STYLE"),
			Zoning:        raw.Field("ZONING"),
			SalePrice:     ParseFloat(raw.Field("LS_PRICE", "SALE_PRICE")),
			SaleDate:      ParseDate(raw.Field("LS_DATE", "SALE_DATE")),
		}
		record.Category = ClassifyUseCode(record.UseCode)

		if year := ParseFloat(raw.Field("YEAR_BUILT", "YR_BUILT")); year != nil {
			y := int(*year)
			if y >= minPlausibleYearBuilt && y <= asOf.Year()+yearBuiltFutureSlack {
				record.YearBuilt = Int(y)
			}
		}

		if !record.HasValueProxy() {
			continue
		}
		cleaned = append(cleaned, record)
	}
	return cleaned
}

// NormalizeLocID canonicalizes a parcel identifier: spaces and dashes are
// stripped, the result is uppercased.
func NormalizeLocID(value string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	return strings.ToUpper(cleaned)
}

// ParseFloat coerces a numeric-looking string ("$350,000", "1,500 sf") to a
// float. Non-numeric or non-finite input yields nil.
func ParseFloat(value string) *float64 {
	text := strings.TrimSpace(value)
	if text == "" {
		return nil
	}
	normalized := nonNumericChars.ReplaceAllString(text, "")
	if normalized == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil
	}
	return &parsed
}

// ParseDate parses a sale date in any of the known municipal layouts.
// Unparsable input yields nil.
func ParseDate(value string) *time.Time {
	text := strings.TrimSpace(value)
	if text == "" {
		return nil
	}
	for _, layout := range saleDateLayouts {
		parsed, err := time.Parse(layout, text)
		if err != nil {
			continue
		}
		return &parsed
	}
	return nil
}

// ClassifyUseCode maps a municipal use code to a coarse property category by
// its leading digit ("101" -> Residential, "300" -> Commercial, ...).
func ClassifyUseCode(useCode string) string {
	code := strings.TrimSpace(useCode)
	if code == "" {
		return "Unknown"
	}
	switch code[0] {
	case '1':
		return "Residential"
	case '2', '3', '5', '6':
		return "Commercial"
	case '4':
		return "Industrial"
	case '0':
		return "Exempt"
	case '7':
		return "Agricultural"
	case '8':
		return "Forest"
	case '9':
		return "Mixed"
	default:
		return "Other"
	}
}

func trimString(v string) string { return strings.TrimSpace(v) }
