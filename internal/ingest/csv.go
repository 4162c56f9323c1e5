// Package ingest reads normalized assessor exports into raw parcel records.
// The feed contract is a header row of column names followed by one row per
// parcel; the engine's normalizer handles aliasing and coercion.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/parcel"
)

// ReadCSVFile loads an assessor CSV export from disk.
func ReadCSVFile(path string) ([]parcel.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open assessor feed %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read assessor feed %s: %w", path, err)
	}
	return records, nil
}

// ReadCSV parses an assessor feed. Header names are uppercased so lookups
// match the normalizer's alias lists regardless of export casing. Short rows
// are tolerated; missing cells simply stay absent from the record.
func ReadCSV(r io.Reader) ([]parcel.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // municipal exports have ragged rows
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feed header: %w", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.ToUpper(strings.TrimSpace(name))
	}

	var records []parcel.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read feed row: %w", err)
		}
		record := make(parcel.RawRecord, len(columns))
		for i, value := range row {
			if i >= len(columns) || columns[i] == "" {
				continue
			}
			record[columns[i]] = value
		}
		records = append(records, record)
	}
	return records, nil
}

// Dedupe keeps one raw record per normalized parcel identifier, preferring
// the row with more populated fields. Municipal exports commonly repeat a
// parcel across condo units or split listings.
func Dedupe(records []parcel.RawRecord) []parcel.RawRecord {
	type slot struct {
		index  int
		filled int
	}
	best := map[string]slot{}
	order := make([]string, 0, len(records))

	for i, record := range records {
		locID := parcel.NormalizeLocID(record.Field("LOC_ID", "PAR_ID", "PROP_ID"))
		if locID == "" {
			continue
		}
		filled := 0
		for _, v := range record {
			if strings.TrimSpace(v) != "" {
				filled++
			}
		}
		existing, seen := best[locID]
		if !seen {
			order = append(order, locID)
			best[locID] = slot{index: i, filled: filled}
			continue
		}
		if filled > existing.filled {
			best[locID] = slot{index: i, filled: filled}
		}
	}

	deduped := make([]parcel.RawRecord, 0, len(order))
	for _, locID := range order {
		deduped = append(deduped, records[best[locID].index])
	}
	return deduped
}
