package outbound

import (
	"context"
	"time"

	"tenantmigrate/internal/domain/entity"
)

// TargetColumn describes one column of the tenant-scoped target table.
type TargetColumn struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// QueryTiming holds the timing of one benchmark query execution set.
type QueryTiming struct {
	Query string        `json:"query"`
	Min   time.Duration `json:"min_ns"`
	Avg   time.Duration `json:"avg_ns"`
	Max   time.Duration `json:"max_ns"`
}

// TargetStore is the tenant-scoped relational target. Implementations scope
// every operation to the session's target table.
type TargetStore interface {
	// AcquireTenantLock takes the advisory lock for the tenant. Returns
	// ErrTenantLocked without blocking if another session holds it.
	AcquireTenantLock(ctx context.Context, tenantID string) error

	// ReleaseTenantLock releases the tenant's advisory lock.
	ReleaseTenantLock(ctx context.Context, tenantID string) error

	// EnsureTable creates the target table and its indexes if absent.
	EnsureTable(ctx context.Context, table string) error

	// UpsertBatch applies one batch of records inside a single transaction:
	// insert, on primary-key conflict overwrite all non-key columns. The
	// batch commits completely or rolls back completely.
	UpsertBatch(ctx context.Context, table string, records []entity.AssetRecord) error

	// Count returns the number of rows in the target table.
	Count(ctx context.Context, table string) (int64, error)

	// ReadBatch returns up to limit records starting at offset, ordered by
	// primary key.
	ReadBatch(ctx context.Context, table string, offset, limit int64) ([]entity.AssetRecord, error)

	// Schema returns the target table's column set.
	Schema(ctx context.Context, table string) ([]TargetColumn, error)

	// PrimaryKeyStats reports null and duplicate primary keys.
	PrimaryKeyStats(ctx context.Context, table string) (PKStats, error)

	// TableExists reports whether the table exists.
	TableExists(ctx context.Context, table string) (bool, error)

	// DropTable drops the table and its indexes.
	DropTable(ctx context.Context, table string) error

	// CopyTable copies the table's rows into a new table with the given name.
	CopyTable(ctx context.Context, table, copyName string) error

	// ListIndexes returns the names of indexes on the table.
	ListIndexes(ctx context.Context, table string) ([]string, error)

	// ExplainScanType returns the planner's scan node type for the query,
	// e.g. "Index Scan" or "Seq Scan".
	ExplainScanType(ctx context.Context, query string, args ...any) (string, error)

	// TimeQuery runs the query once for warm-up, then runs times timed
	// executions and reports min/avg/max.
	TimeQuery(ctx context.Context, timings int, query string, args ...any) (QueryTiming, error)

	// Close releases the connection pool.
	Close()
}
