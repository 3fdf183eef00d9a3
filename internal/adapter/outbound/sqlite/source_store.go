// Package sqlite provides read-only access to the embedded single-file
// source store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"tenantmigrate/internal/domain/entity"
	domainerrors "tenantmigrate/internal/domain/errors/domain"
	"tenantmigrate/internal/port/outbound"

	// SQLite driver registration.
	_ "github.com/mattn/go-sqlite3"
)

// DefaultAssetTable is the asset table name in device stores.
const DefaultAssetTable = "assets"

// SourceStore implements outbound.SourceStore over a SQLite file.
type SourceStore struct {
	db    *sql.DB
	path  string
	table string
}

// Open opens the source store read-only. It fails with ErrSourceNotFound if
// the path does not exist.
func Open(path, table string) (*SourceStore, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domainerrors.ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("stat source %s: %w", path, err)
	}

	if table == "" {
		table = DefaultAssetTable
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}

	return &SourceStore{db: db, path: path, table: table}, nil
}

// Path returns the file path the store was opened from.
func (s *SourceStore) Path() string { return s.path }

// IntegrityCheck runs PRAGMA integrity_check and fails unless it reports ok.
func (s *SourceStore) IntegrityCheck(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check did not run: %v", domainerrors.ErrSourceCorrupt, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check reported %q", domainerrors.ErrSourceCorrupt, result)
	}
	return nil
}

// Schema returns the asset table's column set via PRAGMA table_info.
func (s *SourceStore) Schema(ctx context.Context) ([]outbound.SourceColumn, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.table))
	if err != nil {
		return nil, fmt.Errorf("read schema of %s: %w", s.table, err)
	}
	defer rows.Close()

	var columns []outbound.SourceColumn
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info row: %w", err)
		}
		columns = append(columns, outbound.SourceColumn{
			Name:    name,
			Type:    ctype,
			NotNull: notNull != 0,
			IsPK:    pk != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table_info rows: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: table %s has no columns", domainerrors.ErrSchemaMissing, s.table)
	}
	return columns, nil
}

// Count returns the total number of asset records.
func (s *SourceStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", s.table, err)
	}
	return count, nil
}

// ReadBatch returns up to limit raw rows starting at offset, ordered by
// primary key.
func (s *SourceStore) ReadBatch(ctx context.Context, offset, limit int64) ([]entity.RawAssetRow, error) {
	query := fmt.Sprintf(`
		SELECT asset_id, name, category, serial_number, location, quantity,
		       is_enabled, purchase_price, start_date, end_date, notes,
		       created_at, updated_at
		FROM %s
		ORDER BY asset_id
		LIMIT ? OFFSET ?`, s.table)

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("read batch at offset %d: %w", offset, err)
	}
	defer rows.Close()

	var batch []entity.RawAssetRow
	for rows.Next() {
		var (
			r         entity.RawAssetRow
			name      sql.NullString
			category  sql.NullString
			serial    sql.NullString
			location  sql.NullString
			quantity  sql.NullInt64
			isEnabled sql.NullInt64
			price     sql.NullInt64
			start     sql.NullString
			end       sql.NullString
			notes     sql.NullString
			created   sql.NullString
			updated   sql.NullString
		)
		if err := rows.Scan(&r.AssetID, &name, &category, &serial, &location, &quantity,
			&isEnabled, &price, &start, &end, &notes, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		r.Name = name.String
		r.Category = category.String
		r.SerialNumber = serial.String
		r.Location = location.String
		r.Quantity = quantity.Int64
		r.IsEnabled = isEnabled.Int64
		r.PurchasePrice = price.Int64
		r.StartDate = start.String
		r.EndDate = end.String
		r.Notes = notes.String
		r.CreatedAt = created.String
		r.UpdatedAt = updated.String
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch rows: %w", err)
	}
	return batch, nil
}

// PrimaryKeyStats reports null and duplicate primary keys in the source.
func (s *SourceStore) PrimaryKeyStats(ctx context.Context) (outbound.PKStats, error) {
	var stats outbound.PKStats

	nullQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE asset_id IS NULL OR asset_id = ''", s.table)
	if err := s.db.QueryRowContext(ctx, nullQuery).Scan(&stats.NullKeys); err != nil {
		return stats, fmt.Errorf("count null keys: %w", err)
	}

	dupQuery := fmt.Sprintf(`
		SELECT COALESCE(SUM(n - 1), 0) FROM (
			SELECT COUNT(*) AS n FROM %s
			WHERE asset_id IS NOT NULL AND asset_id != ''
			GROUP BY asset_id HAVING COUNT(*) > 1
		)`, s.table)
	if err := s.db.QueryRowContext(ctx, dupQuery).Scan(&stats.DuplicateKeys); err != nil {
		return stats, fmt.Errorf("count duplicate keys: %w", err)
	}

	return stats, nil
}

// Close releases the underlying connection.
func (s *SourceStore) Close() error {
	return s.db.Close()
}

// CheckFileIntegrity opens the store at path and runs its self-integrity
// check. Used after restoring a backup, where no SourceStore is held open.
func CheckFileIntegrity(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", domainerrors.ErrSourceNotFound, path)
		}
		return err
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("open %s for integrity check: %w", path, err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrSourceCorrupt, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check reported %q", domainerrors.ErrSourceCorrupt, result)
	}
	return nil
}

var _ outbound.SourceStore = (*SourceStore)(nil)
