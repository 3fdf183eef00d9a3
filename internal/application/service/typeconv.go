package service

import (
	"fmt"
	"time"

	"tenantmigrate/internal/domain/entity"
)

// acceptedDateFormats is the ordered list of timestamp formats the source
// store is known to contain. The first matching format wins.
var acceptedDateFormats = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ParseTimestamp parses a source date string against the accepted formats.
// An empty string is a null timestamp with no warning; a non-empty string
// matching no format returns ok=false so the caller can record a warning.
func ParseTimestamp(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	for _, format := range acceptedDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return &t, true
		}
	}
	return nil, false
}

// ConvertBool maps the source store's 0/1 integers to booleans. Any non-zero
// value is true, matching the source engine's own truthiness.
func ConvertBool(v int64) bool {
	return v != 0
}

// ConvertRow applies the deterministic conversion rules to one raw source
// row. Unparsable dates become null timestamps plus a recorded warning;
// conversion never fails the row.
func ConvertRow(raw entity.RawAssetRow) (entity.AssetRecord, []string) {
	var warnings []string

	record := entity.AssetRecord{
		AssetID:       raw.AssetID,
		Name:          raw.Name,
		Category:      raw.Category,
		SerialNumber:  raw.SerialNumber,
		Location:      raw.Location,
		Quantity:      raw.Quantity,
		IsEnabled:     ConvertBool(raw.IsEnabled),
		PurchasePrice: raw.PurchasePrice,
		Notes:         raw.Notes,
	}

	fields := []struct {
		name  string
		value string
		dest  **time.Time
	}{
		{"start_date", raw.StartDate, &record.StartDate},
		{"end_date", raw.EndDate, &record.EndDate},
		{"created_at", raw.CreatedAt, &record.CreatedAt},
		{"updated_at", raw.UpdatedAt, &record.UpdatedAt},
	}
	for _, f := range fields {
		t, ok := ParseTimestamp(f.value)
		if !ok {
			warnings = append(warnings, fmt.Sprintf(
				"asset %s: unparsable %s value %q, stored as null", raw.AssetID, f.name, f.value))
			continue
		}
		*f.dest = t
	}

	return record, warnings
}
