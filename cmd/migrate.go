package cmd

import (
	"context"
	"fmt"
	"os"

	"tenantmigrate/internal/application/common/retry"
	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/application/service"
	"tenantmigrate/internal/domain/entity"
	"tenantmigrate/internal/version"

	"github.com/spf13/cobra"
)

type migrateFlags struct {
	sourcePath   string
	tenantID     string
	batchSize    int
	resumeOffset int64
	policyFile   string
	dryRun       bool
	strict       bool
	deepChecksum bool
}

// newMigrateCmd creates and returns the migrate command.
func newMigrateCmd() *cobra.Command {
	var flags migrateFlags

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate a tenant's asset store into PostgreSQL",
		Long: `Migrate a tenant's embedded asset store into its tenant-scoped table in the
shared PostgreSQL cluster.

The migration runs as a pipeline: inspect the source, create a verified
backup artifact, transfer rows in batches, then validate integrity and query
performance. A failed phase stops the pipeline; every phase that ran appears
in the persisted run report. Re-running a migration is idempotent, and an
interrupted run can be resumed with --resume-offset.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return runMigration(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.sourcePath, "source", "", "Path to the source store file")
	cmd.Flags().StringVar(&flags.tenantID, "tenant", "", "Tenant identifier")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Rows per batch transaction (default from config)")
	cmd.Flags().Int64Var(&flags.resumeOffset, "resume-offset", 0, "Committed offset to resume an interrupted migration from")
	cmd.Flags().StringVar(&flags.policyFile, "policy", "", "YAML exclusion policy file")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Inspect and report without writing to the target")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Treat performance threshold misses as fatal")
	cmd.Flags().BoolVar(&flags.deepChecksum, "deep-checksum", false, "Run the full-table checksum comparison")

	if err := cmd.MarkFlagRequired("tenant"); err != nil {
		fmt.Fprintf(os.Stderr, "Error marking tenant flag required: %v\n", err)
	}

	return cmd
}

func runMigration(ctx context.Context, flags migrateFlags) error {
	cfg := GetConfig()
	toolVersion := version.Get().Version

	batchSize := flags.batchSize
	if batchSize == 0 {
		batchSize = cfg.Migration.BatchSize
	}

	source, err := setupSourceStore(cfg, flags.sourcePath)
	if err != nil {
		return fmt.Errorf("open source store: %w", err)
	}
	defer source.Close()

	pool, err := setupTargetPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to target: %w", err)
	}
	defer pool.Close()
	target := postgresTarget(cfg, pool)

	policy, err := loadPolicy(cfg, flags.policyFile)
	if err != nil {
		return fmt.Errorf("load exclusion policy: %w", err)
	}

	backups, err := setupBackupManager(cfg, toolVersion)
	if err != nil {
		return fmt.Errorf("initialize backup manager: %w", err)
	}

	reports, err := service.NewReportWriter(cfg.Reports.OutputDir)
	if err != nil {
		return fmt.Errorf("initialize report writer: %w", err)
	}

	publisher := setupEventPublisher(cfg)
	if publisher != nil {
		defer publisher.Close()
	}
	migrationMetrics, metricProvider := setupMetrics(ctx, toolVersion)
	defer logMetricTotals(ctx, metricProvider)

	table := service.DefaultTenantNamer.TableName(flags.tenantID)
	session, err := entity.NewMigrationSession(source.Path(), flags.tenantID, table, batchSize)
	if err != nil {
		return fmt.Errorf("create migration session: %w", err)
	}
	if flags.resumeOffset > 0 {
		if err := session.ResumeFrom(flags.resumeOffset); err != nil {
			return fmt.Errorf("resume migration: %w", err)
		}
	}

	retryConfig := retry.DefaultRetryConfig()
	retryConfig.MaxRetries = cfg.Migration.MaxRetries

	progress := service.ProgressReporterFunc(func(offset, total, rowsInBatch int64) {
		slogger.Info(ctx, "Batch committed", slogger.Fields3(
			"offset", offset,
			"total", total,
			"rows_in_batch", rowsInBatch,
		))
	})

	run := &service.MigrationContext{
		Session:     session,
		Inspector:   service.NewSourceInspector(),
		Backups:     backups,
		Migrator:    service.NewBatchMigrator(source, target, policy, retryConfig, migrationMetrics, progress),
		Integrity:   service.NewIntegrityValidator(source, target, policy, migrationMetrics),
		Performance: service.NewPerformanceValidator(target, cfg.Validation.LatencyThreshold),
		Reports:     reports,
		Publisher:   publisher,
		Source:      source,
		BackupOptions: service.BackupOptions{
			Compress: cfg.Backup.Compress,
			Verify:   cfg.Backup.Verify,
		},
		ValidatorOptions: service.IntegrityValidatorOptions{
			SampleSize:   cfg.Validation.SampleSize,
			DeepChecksum: flags.deepChecksum || cfg.Validation.DeepChecksum,
		},
		ExpectedIndexes: cfg.Validation.ExpectedIndexes,
		Strict:          flags.strict || cfg.Validation.Strict,
		DryRun:          flags.dryRun || cfg.Migration.DryRun,
		ToolVersion:     toolVersion,
	}

	report := run.Run(ctx)
	logReportSummary(ctx, report)

	if !report.Success {
		return fmt.Errorf("migration for tenant %s did not succeed", flags.tenantID)
	}
	return nil
}

func logReportSummary(ctx context.Context, report *entity.MigrationReport) {
	fields := slogger.Fields{
		"session_id": report.SessionID,
		"tenant_id":  report.TenantID,
		"success":    report.Success,
		"phases":     len(report.Phases),
	}
	if report.Stats != nil {
		fields["rows_migrated"] = report.Stats.RowsMigrated
		fields["rows_skipped"] = report.Stats.RowsSkipped
		fields["batches_committed"] = report.Stats.BatchesCommitted
	}
	if report.Validation != nil {
		fields["checks_failed"] = report.Validation.FailedChecks()
	}
	if report.Success {
		slogger.Info(ctx, "Migration completed", fields)
	} else {
		slogger.Error(ctx, "Migration failed", fields)
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newMigrateCmd())
}
