package service

import (
	"context"
	"time"

	"tenantmigrate/internal/application/common/metrics"
	"tenantmigrate/internal/application/common/retry"
	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/domain/entity"
	domainerrors "tenantmigrate/internal/domain/errors/domain"
	"tenantmigrate/internal/port/outbound"
)

// ProgressReporter receives per-batch progress. The CLI logs it; tests
// collect it.
type ProgressReporter interface {
	BatchCommitted(offset, total, rowsInBatch int64)
}

// ProgressReporterFunc adapts a function to the ProgressReporter interface.
type ProgressReporterFunc func(offset, total, rowsInBatch int64)

// BatchCommitted implements ProgressReporter.
func (f ProgressReporterFunc) BatchCommitted(offset, total, rowsInBatch int64) {
	f(offset, total, rowsInBatch)
}

// BatchMigrator streams source rows in fixed-size batches and upserts them
// into the tenant-scoped target table, one transaction per batch. Batches are
// independent, so a migration interrupted mid-run can resume from the last
// committed offset.
type BatchMigrator struct {
	source   outbound.SourceStore
	target   outbound.TargetStore
	policy   *ExclusionPolicy
	retrier  *retry.RetryExecutor
	metrics  *metrics.MigrationMetrics
	progress ProgressReporter
}

// NewBatchMigrator creates a BatchMigrator. policy, metrics, and progress may
// be nil.
func NewBatchMigrator(
	source outbound.SourceStore,
	target outbound.TargetStore,
	policy *ExclusionPolicy,
	retryConfig *retry.RetryConfig,
	migrationMetrics *metrics.MigrationMetrics,
	progress ProgressReporter,
) *BatchMigrator {
	if policy == nil {
		policy = &ExclusionPolicy{}
		policy.index()
	}
	return &BatchMigrator{
		source:   source,
		target:   target,
		policy:   policy,
		retrier:  retry.NewRetryExecutor(retryConfig),
		metrics:  migrationMetrics,
		progress: progress,
	}
}

// Migrate transfers every source row at or beyond the session's committed
// offset. Cancellation is cooperative and checked only at batch boundaries;
// an in-flight batch transaction is never interrupted.
//
// On an unrecoverable error mid-run it fails with a PartialMigrationError
// carrying the last committed offset; the caller must resume from that offset
// or invoke a rollback.
func (m *BatchMigrator) Migrate(ctx context.Context, session *entity.MigrationSession) (*entity.MigrationStats, error) {
	start := time.Now()

	if err := m.target.AcquireTenantLock(ctx, session.TenantID()); err != nil {
		return nil, err
	}
	defer func() {
		if err := m.target.ReleaseTenantLock(context.WithoutCancel(ctx), session.TenantID()); err != nil {
			slogger.ErrorWithError(ctx, err, "Failed to release tenant lock",
				slogger.Field("tenant_id", session.TenantID()))
		}
	}()

	if err := m.target.EnsureTable(ctx, session.TargetTable()); err != nil {
		return nil, m.partial(session, err)
	}

	total, err := m.source.Count(ctx)
	if err != nil {
		return nil, m.partial(session, err)
	}

	if err := session.Start(); err != nil {
		return nil, err
	}

	batchSize := int64(session.BatchSize())
	var batches int64

	for offset := session.CommittedOffset(); offset < total; offset += batchSize {
		// Cooperative cancellation, batch boundaries only.
		if err := ctx.Err(); err != nil {
			return nil, m.partial(session, err)
		}

		raw, err := m.source.ReadBatch(ctx, offset, batchSize)
		if err != nil {
			return nil, m.partial(session, err)
		}
		if len(raw) == 0 {
			break
		}

		records, skipped := m.convertBatch(session, raw)

		batchStart := time.Now()
		err = m.retrier.Execute(ctx, func(ctx context.Context) error {
			return m.target.UpsertBatch(ctx, session.TargetTable(), records)
		})
		if err != nil {
			return nil, m.partial(session, err)
		}

		// Offsets advance strictly by batch size so resume points stay
		// aligned with source ordering, including skipped rows.
		newOffset := offset + int64(len(raw))
		if err := session.RecordBatch(newOffset, int64(len(records)), skipped); err != nil {
			return nil, m.partial(session, err)
		}
		batches++

		if m.metrics != nil {
			m.metrics.RecordBatch(ctx, session.TenantID(), int64(len(records)), time.Since(batchStart))
		}
		if m.progress != nil {
			m.progress.BatchCommitted(newOffset, total, int64(len(records)))
		}

		slogger.Debug(ctx, "Batch committed", slogger.Fields3(
			"offset", newOffset,
			"total", total,
			"rows", len(records),
		))
	}

	if err := session.Complete(); err != nil {
		return nil, err
	}

	stats := &entity.MigrationStats{
		RowsMigrated:     session.RowsMigrated(),
		RowsSkipped:      session.RowsSkipped(),
		BatchesCommitted: batches,
		CommittedOffset:  session.CommittedOffset(),
		Warnings:         session.Warnings(),
		Duration:         time.Since(start),
	}

	slogger.Info(ctx, "Migration completed", slogger.Fields3(
		"rows_migrated", stats.RowsMigrated,
		"rows_skipped", stats.RowsSkipped,
		"batches", stats.BatchesCommitted,
	))
	return stats, nil
}

// convertBatch applies conversion rules and the exclusion policy to one raw
// batch. Conversion warnings are recorded on the session, never fatal.
func (m *BatchMigrator) convertBatch(session *entity.MigrationSession, raw []entity.RawAssetRow) ([]entity.AssetRecord, int64) {
	records := make([]entity.AssetRecord, 0, len(raw))
	var skipped int64
	for _, row := range raw {
		if m.policy.Excluded(row.AssetID) {
			skipped++
			continue
		}
		record, warnings := ConvertRow(row)
		for _, w := range warnings {
			session.AddWarning(w)
		}
		records = append(records, record)
	}
	return records, skipped
}

// partial marks the session failed and wraps err with the last committed
// offset so the caller can resume or roll back.
func (m *BatchMigrator) partial(session *entity.MigrationSession, err error) error {
	if failErr := session.Fail(err.Error()); failErr != nil {
		slogger.ErrorNoCtx("Failed to mark session failed", slogger.Field("error", failErr.Error()))
	}
	return &domainerrors.PartialMigrationError{
		SessionID:           session.ID().String(),
		LastCommittedOffset: session.CommittedOffset(),
		RowsMigrated:        session.RowsMigrated(),
		Err:                 err,
	}
}
