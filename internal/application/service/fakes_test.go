package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tenantmigrate/internal/domain/entity"
	domainerrors "tenantmigrate/internal/domain/errors/domain"
	"tenantmigrate/internal/port/outbound"
)

// defaultSourceSchema mirrors the asset table layout migration expects.
var defaultSourceSchema = []outbound.SourceColumn{
	{Name: "asset_id", Type: "TEXT", NotNull: true, IsPK: true},
	{Name: "name", Type: "TEXT"},
	{Name: "category", Type: "TEXT"},
	{Name: "serial_number", Type: "TEXT"},
	{Name: "location", Type: "TEXT"},
	{Name: "quantity", Type: "INTEGER"},
	{Name: "is_enabled", Type: "INTEGER"},
	{Name: "purchase_price", Type: "INTEGER"},
	{Name: "start_date", Type: "TEXT"},
	{Name: "end_date", Type: "TEXT"},
	{Name: "notes", Type: "TEXT"},
	{Name: "created_at", Type: "TEXT"},
	{Name: "updated_at", Type: "TEXT"},
}

var defaultTargetSchema = []outbound.TargetColumn{
	{Name: "asset_id", DataType: "text"},
	{Name: "name", DataType: "text"},
	{Name: "category", DataType: "text"},
	{Name: "serial_number", DataType: "text"},
	{Name: "location", DataType: "text"},
	{Name: "quantity", DataType: "bigint"},
	{Name: "is_enabled", DataType: "boolean"},
	{Name: "purchase_price", DataType: "bigint"},
	{Name: "start_date", DataType: "timestamp with time zone", Nullable: true},
	{Name: "end_date", DataType: "timestamp with time zone", Nullable: true},
	{Name: "notes", DataType: "text"},
	{Name: "created_at", DataType: "timestamp with time zone", Nullable: true},
	{Name: "updated_at", DataType: "timestamp with time zone", Nullable: true},
}

// makeRawRows builds n deterministic source rows with IDs A-0000..A-(n-1).
func makeRawRows(n int) []entity.RawAssetRow {
	rows := make([]entity.RawAssetRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, entity.RawAssetRow{
			AssetID:       fmt.Sprintf("A-%04d", i),
			Name:          fmt.Sprintf("Asset %d", i),
			Category:      "equipment",
			SerialNumber:  fmt.Sprintf("SN-%04d", i),
			Location:      "warehouse-1",
			Quantity:      int64(i % 5),
			IsEnabled:     int64(i % 2),
			PurchasePrice: int64(i) * 100,
			StartDate:     "2024-03-15",
			CreatedAt:     "2024-03-15 10:30:00",
			UpdatedAt:     "2024-03-15 10:30:00",
		})
	}
	return rows
}

// fakeSourceStore serves rows from memory with injectable failures.
type fakeSourceStore struct {
	rows         []entity.RawAssetRow
	schema       []outbound.SourceColumn
	pkStats      outbound.PKStats
	integrityErr error
	schemaErr    error
	countErr     error
	readErr      error
	// readErrAtOffset fails ReadBatch once at the given offset, then clears.
	readErrAtOffset map[int64]error
	closed          bool
}

func newFakeSource(rows []entity.RawAssetRow) *fakeSourceStore {
	return &fakeSourceStore{
		rows:   rows,
		schema: append([]outbound.SourceColumn(nil), defaultSourceSchema...),
	}
}

func (s *fakeSourceStore) IntegrityCheck(_ context.Context) error { return s.integrityErr }

func (s *fakeSourceStore) Schema(_ context.Context) ([]outbound.SourceColumn, error) {
	if s.schemaErr != nil {
		return nil, s.schemaErr
	}
	return s.schema, nil
}

func (s *fakeSourceStore) Count(_ context.Context) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return int64(len(s.rows)), nil
}

func (s *fakeSourceStore) ReadBatch(_ context.Context, offset, limit int64) ([]entity.RawAssetRow, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	if err, ok := s.readErrAtOffset[offset]; ok {
		delete(s.readErrAtOffset, offset)
		return nil, err
	}
	if offset >= int64(len(s.rows)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(s.rows)) {
		end = int64(len(s.rows))
	}
	return s.rows[offset:end], nil
}

func (s *fakeSourceStore) PrimaryKeyStats(_ context.Context) (outbound.PKStats, error) {
	return s.pkStats, nil
}

func (s *fakeSourceStore) Close() error {
	s.closed = true
	return nil
}

// fakeTargetStore keeps tenant tables in memory with injectable failures.
type fakeTargetStore struct {
	mu     sync.Mutex
	tables map[string]map[string]entity.AssetRecord
	locks  map[string]bool

	schema  []outbound.TargetColumn
	pkStats outbound.PKStats
	indexes []string
	scan    string
	timing  outbound.QueryTiming

	acquireErr error
	ensureErr  error
	dropErr    error
	copyErr    error
	timeErr    error
	// upsertFailures fails the next N UpsertBatch calls, then succeeds.
	upsertFailures int
	upsertErr      error
	upsertCalls    int
}

func newFakeTarget() *fakeTargetStore {
	return &fakeTargetStore{
		tables: make(map[string]map[string]entity.AssetRecord),
		locks:  make(map[string]bool),
		schema: append([]outbound.TargetColumn(nil), defaultTargetSchema...),
		scan:   "Index Scan",
	}
}

func (t *fakeTargetStore) AcquireTenantLock(_ context.Context, tenantID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.acquireErr != nil {
		return t.acquireErr
	}
	if t.locks[tenantID] {
		return fmt.Errorf("%w: %s", domainerrors.ErrTenantLocked, tenantID)
	}
	t.locks[tenantID] = true
	return nil
}

func (t *fakeTargetStore) ReleaseTenantLock(_ context.Context, tenantID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, tenantID)
	return nil
}

func (t *fakeTargetStore) EnsureTable(_ context.Context, table string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ensureErr != nil {
		return t.ensureErr
	}
	if _, ok := t.tables[table]; !ok {
		t.tables[table] = make(map[string]entity.AssetRecord)
	}
	return nil
}

func (t *fakeTargetStore) UpsertBatch(_ context.Context, table string, records []entity.AssetRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upsertCalls++
	if t.upsertFailures > 0 {
		t.upsertFailures--
		if t.upsertErr != nil {
			return t.upsertErr
		}
		return &domainerrors.ConnectivityError{Op: "upsert batch", Err: fmt.Errorf("connection reset")}
	}
	rows, ok := t.tables[table]
	if !ok {
		rows = make(map[string]entity.AssetRecord)
		t.tables[table] = rows
	}
	for _, r := range records {
		rows[r.AssetID] = r
	}
	return nil
}

func (t *fakeTargetStore) Count(_ context.Context, table string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.tables[table])), nil
}

func (t *fakeTargetStore) ReadBatch(_ context.Context, table string, offset, limit int64) ([]entity.AssetRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := t.tables[table]
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= int64(len(ids)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(ids)) {
		end = int64(len(ids))
	}
	out := make([]entity.AssetRecord, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, rows[id])
	}
	return out, nil
}

func (t *fakeTargetStore) Schema(_ context.Context, _ string) ([]outbound.TargetColumn, error) {
	return t.schema, nil
}

func (t *fakeTargetStore) PrimaryKeyStats(_ context.Context, _ string) (outbound.PKStats, error) {
	return t.pkStats, nil
}

func (t *fakeTargetStore) TableExists(_ context.Context, table string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tables[table]
	return ok, nil
}

func (t *fakeTargetStore) DropTable(_ context.Context, table string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dropErr != nil {
		return t.dropErr
	}
	delete(t.tables, table)
	return nil
}

func (t *fakeTargetStore) CopyTable(_ context.Context, table, copyName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.copyErr != nil {
		return t.copyErr
	}
	src, ok := t.tables[table]
	if !ok {
		return fmt.Errorf("table %s does not exist", table)
	}
	dst := make(map[string]entity.AssetRecord, len(src))
	for id, r := range src {
		dst[id] = r
	}
	t.tables[copyName] = dst
	return nil
}

func (t *fakeTargetStore) ListIndexes(_ context.Context, _ string) ([]string, error) {
	return t.indexes, nil
}

func (t *fakeTargetStore) ExplainScanType(_ context.Context, _ string, _ ...any) (string, error) {
	return t.scan, nil
}

func (t *fakeTargetStore) TimeQuery(_ context.Context, _ int, query string, _ ...any) (outbound.QueryTiming, error) {
	if t.timeErr != nil {
		return outbound.QueryTiming{}, t.timeErr
	}
	timing := t.timing
	timing.Query = query
	return timing, nil
}

func (t *fakeTargetStore) Close() {}

// rowsInTable returns the target table's records sorted by primary key.
func (t *fakeTargetStore) rowsInTable(table string) []entity.AssetRecord {
	out, _ := t.ReadBatch(context.Background(), table, 0, int64(1<<30))
	return out
}
