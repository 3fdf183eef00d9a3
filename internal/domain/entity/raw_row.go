package entity

// RawAssetRow is an asset record as the source store holds it, before type
// conversion: booleans as 0/1 integers, timestamps as strings. The migrator
// owns the conversion rules.
type RawAssetRow struct {
	AssetID       string
	Name          string
	Category      string
	SerialNumber  string
	Location      string
	Quantity      int64
	IsEnabled     int64  // 0 or 1
	PurchasePrice int64  // cents
	StartDate     string // empty means null
	EndDate       string
	Notes         string
	CreatedAt     string
	UpdatedAt     string
}
