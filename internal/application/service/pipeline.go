package service

import (
	"context"
	"fmt"
	"time"

	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/domain/entity"
	"tenantmigrate/internal/port/outbound"

	"github.com/google/uuid"
)

// Pipeline phase names, in execution order.
const (
	PhaseInspect     = "inspect"
	PhaseBackup      = "backup"
	PhaseMigrate     = "migrate"
	PhaseIntegrity   = "integrity_validation"
	PhasePerformance = "performance_validation"
)

// MigrationContext carries everything one migration run needs, constructed
// once per session and passed by reference through each phase. There is no
// shared mutable global state.
type MigrationContext struct {
	Session     *entity.MigrationSession
	Inspector   *SourceInspector
	Backups     *BackupManager
	Migrator    *BatchMigrator
	Integrity   *IntegrityValidator
	Performance *PerformanceValidator
	Reports     *ReportWriter
	Publisher   outbound.EventPublisher
	Source      outbound.SourceStore

	BackupOptions    BackupOptions
	ValidatorOptions IntegrityValidatorOptions
	ExpectedIndexes  []string
	Strict           bool
	DryRun           bool
	ToolVersion      string
}

// Run executes the full pipeline and returns its report. Each phase produces
// a structured result instead of raising past its boundary; a fatal phase
// failure stops later phases but the report always carries every phase that
// ran.
func (c *MigrationContext) Run(ctx context.Context) *entity.MigrationReport {
	report := &entity.MigrationReport{
		SessionID:   c.Session.ID().String(),
		TenantID:    c.Session.TenantID(),
		SourcePath:  c.Session.SourcePath(),
		TargetTable: c.Session.TargetTable(),
		DryRun:      c.DryRun,
		ToolVersion: c.ToolVersion,
	}

	c.publish(ctx, outbound.EventMigrationStarted, 0, "")

	// Inspect.
	inspectStart := time.Now()
	info, err := c.Inspector.Inspect(ctx, c.Source, c.Session.SourcePath())
	report.Phases = append(report.Phases, phaseResult(PhaseInspect, inspectStart, err, func() string {
		return ""
	}))
	if err != nil {
		return c.finish(ctx, report, false)
	}
	report.Phases[len(report.Phases)-1].Detail = detailf("source has %d records", info.RecordCount)

	if c.DryRun {
		report.Phases = append(report.Phases, entity.PhaseResult{
			Phase:      PhaseMigrate,
			Success:    true,
			Detail:     detailf("dry run: %d records would be migrated", info.RecordCount),
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
		})
		return c.finish(ctx, report, true)
	}

	// Backup. A verified artifact must exist before any destructive step.
	backupStart := time.Now()
	artifact, err := c.Backups.CreateBackup(ctx, c.Session.SourcePath(), c.BackupOptions)
	result := phaseResult(PhaseBackup, backupStart, err, func() string {
		return detailf("artifact %s", artifact.ID)
	})
	report.Phases = append(report.Phases, result)
	if err != nil {
		return c.finish(ctx, report, false)
	}
	report.BackupID = artifact.ID

	// Migrate.
	migrateStart := time.Now()
	stats, err := c.Migrator.Migrate(ctx, c.Session)
	report.Phases = append(report.Phases, phaseResult(PhaseMigrate, migrateStart, err, func() string {
		return detailf("%d rows migrated in %d batches", stats.RowsMigrated, stats.BatchesCommitted)
	}))
	if err != nil {
		return c.finish(ctx, report, false)
	}
	report.Stats = stats

	// Integrity validation.
	validation := c.Integrity.Validate(ctx, c.Session, c.ValidatorOptions)

	// Performance validation appends to the same report; a performance miss
	// is a warning unless strict mode is on.
	perfChecks := c.Performance.Validate(ctx, c.Session.TargetTable(), c.Strict)
	validation.Checks = append(validation.Checks, perfChecks...)
	if len(c.ExpectedIndexes) > 0 {
		validation.Checks = append(validation.Checks,
			c.Performance.CheckIndexes(ctx, c.Session.TargetTable(), c.ExpectedIndexes))
	}
	validation.FinishedAt = time.Now()
	report.Validation = validation

	report.Phases = append(report.Phases, entity.PhaseResult{
		Phase:      PhaseIntegrity,
		Success:    validation.Passed(),
		Fatal:      !validation.Passed(),
		Detail:     detailf("%d checks, failed: %v", len(validation.Checks), validation.FailedChecks()),
		StartedAt:  validation.StartedAt,
		FinishedAt: validation.FinishedAt,
	})

	return c.finish(ctx, report, validation.Passed())
}

// finish stamps the report, persists it, and publishes the terminal event.
func (c *MigrationContext) finish(ctx context.Context, report *entity.MigrationReport, success bool) *entity.MigrationReport {
	report.Success = success
	report.GeneratedAt = time.Now()

	if c.Reports != nil {
		if _, err := c.Reports.Write(ctx, "migration_report", report); err != nil {
			slogger.ErrorWithError(ctx, err, "Failed to persist migration report", nil)
		}
	}

	var rows int64
	if report.Stats != nil {
		rows = report.Stats.RowsMigrated
	}
	if success {
		c.publish(ctx, outbound.EventMigrationCompleted, rows, "")
	} else {
		c.publish(ctx, outbound.EventMigrationFailed, rows, lastError(report))
	}
	return report
}

// publish sends a lifecycle event. Publishing is best-effort; failures are
// logged, never propagated.
func (c *MigrationContext) publish(ctx context.Context, subject string, rows int64, detail string) {
	if c.Publisher == nil {
		return
	}
	event := outbound.MigrationEvent{
		SessionID:    c.Session.ID(),
		TenantID:     c.Session.TenantID(),
		Subject:      subject,
		RowsMigrated: rows,
		Detail:       detail,
		Timestamp:    time.Now(),
		MessageID:    uuid.New().String(),
	}
	if err := c.Publisher.Publish(ctx, event); err != nil {
		slogger.Warn(ctx, "Failed to publish lifecycle event", slogger.Fields2(
			"subject", subject,
			"error", err.Error(),
		))
	}
}

func phaseResult(phase string, start time.Time, err error, successDetail func() string) entity.PhaseResult {
	result := entity.PhaseResult{
		Phase:      phase,
		StartedAt:  start,
		FinishedAt: time.Now(),
	}
	if err != nil {
		result.Fatal = true
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.Detail = successDetail()
	return result
}

func lastError(report *entity.MigrationReport) string {
	for i := len(report.Phases) - 1; i >= 0; i-- {
		if report.Phases[i].Error != "" {
			return report.Phases[i].Error
		}
	}
	return ""
}

func detailf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
