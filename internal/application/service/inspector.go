package service

import (
	"context"
	"fmt"

	"tenantmigrate/internal/application/common/slogger"
	domainerrors "tenantmigrate/internal/domain/errors/domain"
	"tenantmigrate/internal/port/outbound"
)

// requiredSourceColumns is the column set migration depends on. A source
// missing any of these fails inspection with SchemaMissing.
var requiredSourceColumns = []string{
	"asset_id",
	"name",
	"category",
	"quantity",
	"is_enabled",
	"start_date",
}

// SourceInspector validates the source store's existence, structural
// integrity, and row count before any other phase runs. No partial results
// are returned on failure.
type SourceInspector struct{}

// NewSourceInspector creates a SourceInspector.
func NewSourceInspector() *SourceInspector {
	return &SourceInspector{}
}

// Inspect runs the source's self-integrity check, verifies the required
// column set is present, and returns the row count and schema.
func (i *SourceInspector) Inspect(ctx context.Context, source outbound.SourceStore, path string) (*outbound.SourceInfo, error) {
	if err := source.IntegrityCheck(ctx); err != nil {
		return nil, err
	}

	columns, err := source.Schema(ctx)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c.Name] = true
	}
	for _, required := range requiredSourceColumns {
		if !present[required] {
			return nil, fmt.Errorf("%w: column %s", domainerrors.ErrSchemaMissing, required)
		}
	}

	count, err := source.Count(ctx)
	if err != nil {
		return nil, err
	}

	slogger.Info(ctx, "Source inspection passed", slogger.Fields3(
		"path", path,
		"record_count", count,
		"columns", len(columns),
	))

	return &outbound.SourceInfo{
		Path:        path,
		RecordCount: count,
		Columns:     columns,
	}, nil
}
