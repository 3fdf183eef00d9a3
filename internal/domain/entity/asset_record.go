package entity

import (
	"time"
)

// AssetRecord is one row of the asset store, keyed by an immutable business
// primary key. A target record is derived from exactly one source record at
// migration time; afterwards the tenant owns it independently.
type AssetRecord struct {
	AssetID       string
	Name          string
	Category      string
	SerialNumber  string
	Location      string
	Quantity      int64
	IsEnabled     bool
	PurchasePrice int64 // cents
	StartDate     *time.Time
	EndDate       *time.Time
	Notes         string
	CreatedAt     *time.Time
	UpdatedAt     *time.Time
}

// AssetColumns lists the record's columns in canonical order, primary key
// first. Canonical serialization for checksums follows this order.
var AssetColumns = []string{
	"asset_id",
	"name",
	"category",
	"serial_number",
	"location",
	"quantity",
	"is_enabled",
	"purchase_price",
	"start_date",
	"end_date",
	"notes",
	"created_at",
	"updated_at",
}

// Equal compares two records field by field. Timestamps compare by instant,
// not by location.
func (r AssetRecord) Equal(other AssetRecord) bool {
	if r.AssetID != other.AssetID ||
		r.Name != other.Name ||
		r.Category != other.Category ||
		r.SerialNumber != other.SerialNumber ||
		r.Location != other.Location ||
		r.Quantity != other.Quantity ||
		r.IsEnabled != other.IsEnabled ||
		r.PurchasePrice != other.PurchasePrice ||
		r.Notes != other.Notes {
		return false
	}
	return timesEqual(r.StartDate, other.StartDate) &&
		timesEqual(r.EndDate, other.EndDate) &&
		timesEqual(r.CreatedAt, other.CreatedAt) &&
		timesEqual(r.UpdatedAt, other.UpdatedAt)
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
