package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"tenantmigrate/internal/domain/entity"
	domainerrors "tenantmigrate/internal/domain/errors/domain"
	"tenantmigrate/internal/port/outbound"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TargetStore implements outbound.TargetStore over a pgxpool.Pool. Every
// database call runs under the configured per-call query timeout. Advisory
// locks are session-scoped in Postgres, so each tenant lock is taken on a
// dedicated connection held out of the pool until the lock is released.
type TargetStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration

	mu        sync.Mutex
	lockConns map[string]*pgxpool.Conn
}

// NewTargetStore creates a TargetStore backed by the given pool. A
// queryTimeout of zero disables per-call timeouts.
func NewTargetStore(pool *pgxpool.Pool, queryTimeout time.Duration) *TargetStore {
	return &TargetStore{
		pool:         pool,
		queryTimeout: queryTimeout,
		lockConns:    make(map[string]*pgxpool.Conn),
	}
}

// opCtx applies the per-call query timeout when one is configured.
func (t *TargetStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.queryTimeout)
}

// tenantLockKey derives a 64-bit advisory lock key from the tenant ID.
func tenantLockKey(tenantID string) int64 {
	h := fnv.New64a()
	h.Write([]byte("tenantmigrate:"))
	h.Write([]byte(tenantID))
	return int64(h.Sum64())
}

// AcquireTenantLock takes the tenant's advisory lock without blocking. The
// lock's connection stays checked out of the pool until release; running
// the lock through a pooled call would tie it to whichever connection the
// pool happened to hand out, and the pool would reclaim it.
func (t *TargetStore) AcquireTenantLock(ctx context.Context, tenantID string) error {
	t.mu.Lock()
	_, held := t.lockConns[tenantID]
	t.mu.Unlock()
	if held {
		return fmt.Errorf("%w: tenant %s", domainerrors.ErrTenantLocked, tenantID)
	}

	opCtx, cancel := t.opCtx(ctx)
	defer cancel()

	conn, err := t.pool.Acquire(opCtx)
	if err != nil {
		return classify("acquire lock connection", err)
	}

	var acquired bool
	if err := conn.QueryRow(opCtx, "SELECT pg_try_advisory_lock($1)", tenantLockKey(tenantID)).Scan(&acquired); err != nil {
		conn.Release()
		return classify("acquire tenant lock", err)
	}
	if !acquired {
		conn.Release()
		return fmt.Errorf("%w: tenant %s", domainerrors.ErrTenantLocked, tenantID)
	}

	t.mu.Lock()
	t.lockConns[tenantID] = conn
	t.mu.Unlock()
	return nil
}

// ReleaseTenantLock releases the tenant's advisory lock on the connection
// that holds it, then returns that connection to the pool.
func (t *TargetStore) ReleaseTenantLock(ctx context.Context, tenantID string) error {
	t.mu.Lock()
	conn, held := t.lockConns[tenantID]
	delete(t.lockConns, tenantID)
	t.mu.Unlock()
	if !held {
		return fmt.Errorf("tenant lock for %s was not held", tenantID)
	}
	defer conn.Release()

	opCtx, cancel := t.opCtx(ctx)
	defer cancel()

	var released bool
	if err := conn.QueryRow(opCtx, "SELECT pg_advisory_unlock($1)", tenantLockKey(tenantID)).Scan(&released); err != nil {
		return classify("release tenant lock", err)
	}
	if !released {
		return fmt.Errorf("tenant lock for %s was not held", tenantID)
	}
	return nil
}

// EnsureTable creates the target table and its indexes if absent.
func (t *TargetStore) EnsureTable(ctx context.Context, table string) error {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	ident := pgx.Identifier{table}.Sanitize()
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			asset_id       text PRIMARY KEY,
			name           text NOT NULL DEFAULT '',
			category       text NOT NULL DEFAULT '',
			serial_number  text NOT NULL DEFAULT '',
			location       text NOT NULL DEFAULT '',
			quantity       bigint NOT NULL DEFAULT 0,
			is_enabled     boolean NOT NULL DEFAULT false,
			purchase_price bigint NOT NULL DEFAULT 0,
			start_date     timestamptz,
			end_date       timestamptz,
			notes          text NOT NULL DEFAULT '',
			created_at     timestamptz,
			updated_at     timestamptz
		)`, ident)
	if _, err := t.pool.Exec(ctx, ddl); err != nil {
		return classify("create target table", err)
	}

	for _, idx := range []struct{ suffix, column string }{
		{"is_enabled", "is_enabled"},
		{"category", "category"},
	} {
		name := pgx.Identifier{fmt.Sprintf("idx_%s_%s", table, idx.suffix)}.Sanitize()
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, ident, idx.column)
		if _, err := t.pool.Exec(ctx, stmt); err != nil {
			return classify("create target index", err)
		}
	}
	return nil
}

// upsertSQL is the per-row upsert: insert, on primary-key conflict overwrite
// all non-key columns.
func upsertSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (asset_id, name, category, serial_number, location, quantity,
		                is_enabled, purchase_price, start_date, end_date, notes,
		                created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (asset_id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			serial_number = EXCLUDED.serial_number,
			location = EXCLUDED.location,
			quantity = EXCLUDED.quantity,
			is_enabled = EXCLUDED.is_enabled,
			purchase_price = EXCLUDED.purchase_price,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			notes = EXCLUDED.notes,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`, pgx.Identifier{table}.Sanitize())
}

// UpsertBatch applies one batch inside a single transaction. The batch commits
// completely or rolls back completely; no half-applied batch is observable.
func (t *TargetStore) UpsertBatch(ctx context.Context, table string, records []entity.AssetRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return classify("begin batch transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	sql := upsertSQL(table)
	for _, r := range records {
		batch.Queue(sql,
			r.AssetID, r.Name, r.Category, r.SerialNumber, r.Location, r.Quantity,
			r.IsEnabled, r.PurchasePrice, r.StartDate, r.EndDate, r.Notes,
			r.CreatedAt, r.UpdatedAt)
	}

	results := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return classify("upsert batch row", err)
		}
	}
	if err := results.Close(); err != nil {
		return classify("close batch results", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit batch transaction", err)
	}
	return nil
}

// Count returns the number of rows in the target table.
func (t *TargetStore) Count(ctx context.Context, table string) (int64, error) {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", pgx.Identifier{table}.Sanitize())
	if err := t.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, classify("count target rows", err)
	}
	return count, nil
}

// ReadBatch returns up to limit records starting at offset, ordered by
// primary key.
func (t *TargetStore) ReadBatch(ctx context.Context, table string, offset, limit int64) ([]entity.AssetRecord, error) {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT asset_id, name, category, serial_number, location, quantity,
		       is_enabled, purchase_price, start_date, end_date, notes,
		       created_at, updated_at
		FROM %s
		ORDER BY asset_id
		LIMIT $1 OFFSET $2`, pgx.Identifier{table}.Sanitize())

	rows, err := t.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, classify("read target batch", err)
	}
	defer rows.Close()

	var records []entity.AssetRecord
	for rows.Next() {
		var r entity.AssetRecord
		if err := rows.Scan(&r.AssetID, &r.Name, &r.Category, &r.SerialNumber, &r.Location,
			&r.Quantity, &r.IsEnabled, &r.PurchasePrice, &r.StartDate, &r.EndDate,
			&r.Notes, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan target row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate target rows", err)
	}
	return records, nil
}

// Schema returns the target table's column set from information_schema.
func (t *TargetStore) Schema(ctx context.Context, table string) ([]outbound.TargetColumn, error) {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	rows, err := t.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, classify("read target schema", err)
	}
	defer rows.Close()

	var columns []outbound.TargetColumn
	for rows.Next() {
		var c outbound.TargetColumn
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate column rows", err)
	}
	return columns, nil
}

// PrimaryKeyStats reports null and duplicate primary keys in the target.
func (t *TargetStore) PrimaryKeyStats(ctx context.Context, table string) (outbound.PKStats, error) {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	var stats outbound.PKStats
	ident := pgx.Identifier{table}.Sanitize()

	nullQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE asset_id IS NULL OR asset_id = ''", ident)
	if err := t.pool.QueryRow(ctx, nullQuery).Scan(&stats.NullKeys); err != nil {
		return stats, classify("count null target keys", err)
	}

	dupQuery := fmt.Sprintf(`
		SELECT COALESCE(SUM(n - 1), 0)::bigint FROM (
			SELECT COUNT(*) AS n FROM %s
			WHERE asset_id IS NOT NULL AND asset_id != ''
			GROUP BY asset_id HAVING COUNT(*) > 1
		) d`, ident)
	if err := t.pool.QueryRow(ctx, dupQuery).Scan(&stats.DuplicateKeys); err != nil {
		return stats, classify("count duplicate target keys", err)
	}

	return stats, nil
}

// TableExists reports whether the table exists.
func (t *TargetStore) TableExists(ctx context.Context, table string) (bool, error) {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	var exists bool
	err := t.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table).
		Scan(&exists)
	if err != nil {
		return false, classify("check table existence", err)
	}
	return exists, nil
}

// DropTable drops the table and, with it, its indexes.
func (t *TargetStore) DropTable(ctx context.Context, table string) error {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{table}.Sanitize())
	if _, err := t.pool.Exec(ctx, query); err != nil {
		return classify("drop target table", err)
	}
	return nil
}

// CopyTable copies the table's rows into a new table with the given name.
func (t *TargetStore) CopyTable(ctx context.Context, table, copyName string) error {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf("CREATE TABLE %s AS TABLE %s",
		pgx.Identifier{copyName}.Sanitize(), pgx.Identifier{table}.Sanitize())
	if _, err := t.pool.Exec(ctx, query); err != nil {
		return classify("copy target table", err)
	}
	return nil
}

// ListIndexes returns the names of indexes on the table.
func (t *TargetStore) ListIndexes(ctx context.Context, table string) ([]string, error) {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	rows, err := t.pool.Query(ctx, "SELECT indexname FROM pg_indexes WHERE tablename = $1", table)
	if err != nil {
		return nil, classify("list target indexes", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan index name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate index rows", err)
	}
	return names, nil
}

// explainNode is one node of the planner's JSON explain output.
type explainNode struct {
	NodeType string        `json:"Node Type"`
	Plans    []explainNode `json:"Plans"`
}

// findScanNode walks the plan tree and returns the first scan node's type.
func findScanNode(node explainNode) string {
	if isScanNodeType(node.NodeType) {
		return node.NodeType
	}
	for _, child := range node.Plans {
		if found := findScanNode(child); found != "" {
			return found
		}
	}
	return ""
}

func isScanNodeType(nodeType string) bool {
	switch nodeType {
	case "Seq Scan", "Index Scan", "Index Only Scan", "Bitmap Heap Scan", "Bitmap Index Scan", "Tid Scan":
		return true
	}
	return false
}

// ExplainScanType returns the planner's scan node type for the query.
func (t *TargetStore) ExplainScanType(ctx context.Context, query string, args ...any) (string, error) {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	var raw []byte
	explain := "EXPLAIN (FORMAT JSON) " + query
	if err := t.pool.QueryRow(ctx, explain, args...).Scan(&raw); err != nil {
		return "", classify("explain query", err)
	}

	var plans []struct {
		Plan explainNode `json:"Plan"`
	}
	if err := json.Unmarshal(raw, &plans); err != nil {
		return "", fmt.Errorf("parse explain output: %w", err)
	}
	if len(plans) == 0 {
		return "", fmt.Errorf("explain returned no plan")
	}

	scan := findScanNode(plans[0].Plan)
	if scan == "" {
		return plans[0].Plan.NodeType, nil
	}
	return scan, nil
}

// TimeQuery runs the query once for warm-up, then timings timed executions
// and reports min/avg/max.
func (t *TargetStore) TimeQuery(ctx context.Context, timings int, query string, args ...any) (outbound.QueryTiming, error) {
	timing := outbound.QueryTiming{Query: query}
	if timings < 1 {
		timings = 1
	}

	// Warm-up execution, discarded.
	if err := t.drainQuery(ctx, query, args...); err != nil {
		return timing, err
	}

	var total time.Duration
	for i := 0; i < timings; i++ {
		start := time.Now()
		if err := t.drainQuery(ctx, query, args...); err != nil {
			return timing, err
		}
		elapsed := time.Since(start)

		total += elapsed
		if timing.Min == 0 || elapsed < timing.Min {
			timing.Min = elapsed
		}
		if elapsed > timing.Max {
			timing.Max = elapsed
		}
	}
	timing.Avg = total / time.Duration(timings)
	return timing, nil
}

// drainQuery executes the query and reads every row, so timing covers the
// full result transfer. The per-call timeout applies to each execution.
func (t *TargetStore) drainQuery(ctx context.Context, query string, args ...any) error {
	ctx, cancel := t.opCtx(ctx)
	defer cancel()

	rows, err := t.pool.Query(ctx, query, args...)
	if err != nil {
		return classify("benchmark query", err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return classify("benchmark query rows", err)
	}
	return nil
}

// Close releases any held lock connections, then the pool.
func (t *TargetStore) Close() {
	t.mu.Lock()
	for tenantID, conn := range t.lockConns {
		conn.Release()
		delete(t.lockConns, tenantID)
	}
	t.mu.Unlock()
	t.pool.Close()
}

var _ outbound.TargetStore = (*TargetStore)(nil)
