// Package metrics provides OTEL instruments for the migration pipeline.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MigrationMetrics holds the pipeline's OTEL instruments.
type MigrationMetrics struct {
	rowsMigratedTotal     metric.Int64Counter
	batchesCommittedTotal metric.Int64Counter
	batchDurationSeconds  metric.Float64Histogram
	checkFailuresTotal    metric.Int64Counter
	rollbackStepsTotal    metric.Int64Counter
}

// NewMigrationMetrics initializes OTEL metrics for migration operations.
func NewMigrationMetrics() (*MigrationMetrics, error) {
	meter := otel.Meter("tenantmigrate/pipeline")

	rowsMigratedTotal, err := meter.Int64Counter(
		"migration_rows_migrated_total",
		metric.WithDescription("Total number of rows upserted into the target"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows migrated counter: %w", err)
	}

	batchesCommittedTotal, err := meter.Int64Counter(
		"migration_batches_committed_total",
		metric.WithDescription("Total number of batch transactions committed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batches committed counter: %w", err)
	}

	batchDurationSeconds, err := meter.Float64Histogram(
		"migration_batch_duration_seconds",
		metric.WithDescription("Duration of batch transactions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch duration histogram: %w", err)
	}

	checkFailuresTotal, err := meter.Int64Counter(
		"validation_check_failures_total",
		metric.WithDescription("Total number of failed validation checks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create check failures counter: %w", err)
	}

	rollbackStepsTotal, err := meter.Int64Counter(
		"rollback_steps_total",
		metric.WithDescription("Total number of executed rollback steps"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rollback steps counter: %w", err)
	}

	return &MigrationMetrics{
		rowsMigratedTotal:     rowsMigratedTotal,
		batchesCommittedTotal: batchesCommittedTotal,
		batchDurationSeconds:  batchDurationSeconds,
		checkFailuresTotal:    checkFailuresTotal,
		rollbackStepsTotal:    rollbackStepsTotal,
	}, nil
}

// RecordBatch records one committed batch.
func (m *MigrationMetrics) RecordBatch(ctx context.Context, tenantID string, rows int64, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("tenant_id", tenantID))
	m.rowsMigratedTotal.Add(ctx, rows, attrs)
	m.batchesCommittedTotal.Add(ctx, 1, attrs)
	m.batchDurationSeconds.Record(ctx, duration.Seconds(), attrs)
}

// RecordCheckFailure records one failed validation check.
func (m *MigrationMetrics) RecordCheckFailure(ctx context.Context, checkName string) {
	m.checkFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("check", checkName)))
}

// RecordRollbackStep records one executed rollback step.
func (m *MigrationMetrics) RecordRollbackStep(ctx context.Context, step string, success bool) {
	m.rollbackStepsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.Bool("success", success),
	))
}
