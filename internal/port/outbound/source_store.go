package outbound

import (
	"context"

	"tenantmigrate/internal/domain/entity"
)

// SourceColumn describes one column of the source store's schema.
type SourceColumn struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	NotNull bool   `json:"not_null"`
	IsPK    bool   `json:"is_pk"`
}

// SourceInfo is the result of inspecting a source store.
type SourceInfo struct {
	Path        string         `json:"path"`
	RecordCount int64          `json:"record_count"`
	Columns     []SourceColumn `json:"columns"`
}

// PKStats summarizes primary-key health in one store.
type PKStats struct {
	NullKeys      int64 `json:"null_keys"`
	DuplicateKeys int64 `json:"duplicate_keys"`
}

// SourceStore reads the embedded single-file asset store. All reads are
// ordered by primary key so batch offsets are deterministic.
type SourceStore interface {
	// IntegrityCheck runs the store's self-integrity check and returns an
	// error unless it reports ok.
	IntegrityCheck(ctx context.Context) error

	// Schema returns the asset table's column set.
	Schema(ctx context.Context) ([]SourceColumn, error)

	// Count returns the total number of asset records.
	Count(ctx context.Context) (int64, error)

	// ReadBatch returns up to limit records starting at offset, ordered by
	// primary key. Boolean and timestamp fields are returned raw; conversion
	// happens in the migrator so the rules stay in one place.
	ReadBatch(ctx context.Context, offset, limit int64) ([]entity.RawAssetRow, error)

	// PrimaryKeyStats reports null and duplicate primary keys.
	PrimaryKeyStats(ctx context.Context) (PKStats, error)

	// Close releases the underlying connection.
	Close() error
}
