// Package parcel defines the canonical parcel record types shared by the
// valuation engine and its collaborators.
package parcel

import "time"

// RawRecord is a single untyped row from an assessor feed. Municipal exports
// disagree on column names, so lookups go through Field with alias lists.
type RawRecord map[string]string

// Field returns the first non-empty value among the given keys.
func (r RawRecord) Field(keys ...string) string {
	for _, key := range keys {
		if v, ok := r[key]; ok {
			if trimmed := trimString(v); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// CleanRecord is a RawRecord after normalization. Optional attributes are
// pointer-typed; a nil pointer means the source row had no usable value.
type CleanRecord struct {
	LocID         string     `json:"loc_id"`
	AssessedValue *float64   `json:"assessed_value,omitempty"`
	LandValue     *float64   `json:"land_value,omitempty"`
	BuildingValue *float64   `json:"building_value,omitempty"`
	LotSize       *float64   `json:"lot_size,omitempty"`
	BuildingArea  *float64   `json:"building_area,omitempty"`
	UseCode       string     `json:"use_code,omitempty"`
	Category      string     `json:"category"`
	Style         string     `json:"style,omitempty"`
	Zoning        string     `json:"zoning,omitempty"`
	YearBuilt     *int       `json:"year_built,omitempty"`
	SalePrice     *float64   `json:"sale_price,omitempty"`
	SaleDate      *time.Time `json:"sale_date,omitempty"`
}

// SalePricePerSqft returns sale price divided by building area, or nil when
// either input is missing or non-positive.
func (r CleanRecord) SalePricePerSqft() *float64 {
	if r.SalePrice == nil || r.BuildingArea == nil {
		return nil
	}
	if *r.SalePrice <= 0 || *r.BuildingArea <= 0 {
		return nil
	}
	psf := *r.SalePrice / *r.BuildingArea
	return &psf
}

// HasValueProxy reports whether the record carries at least one field a
// valuation can anchor on. Records without any proxy are unusable as either
// subject or comparable and are dropped during normalization.
func (r CleanRecord) HasValueProxy() bool {
	return r.AssessedValue != nil || r.BuildingArea != nil || r.LotSize != nil || r.SalePrice != nil
}

// Float is a convenience constructor for optional numeric fields in tests
// and fixtures.
func Float(v float64) *float64 { return &v }

// Int is the *int counterpart of Float.
func Int(v int) *int { return &v }
