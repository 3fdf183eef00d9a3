package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/application/service"
	"tenantmigrate/internal/domain/entity"
	"tenantmigrate/internal/version"

	"github.com/spf13/cobra"
)

type validateFlags struct {
	sourcePath   string
	tenantID     string
	policyFile   string
	strict       bool
	deepChecksum bool
}

// newValidateCmd creates and returns the validate command.
func newValidateCmd() *cobra.Command {
	var flags validateFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a migrated tenant against its source store",
		Long: `Validate a previously migrated tenant by re-running the integrity and
performance check battery against the source store and the tenant's target
table.

All checks run even when one fails; no check modifies any data. The full
check results are persisted as a validation report.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return runValidation(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.sourcePath, "source", "", "Path to the source store file")
	cmd.Flags().StringVar(&flags.tenantID, "tenant", "", "Tenant identifier")
	cmd.Flags().StringVar(&flags.policyFile, "policy", "", "YAML exclusion policy file")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Treat performance threshold misses as fatal")
	cmd.Flags().BoolVar(&flags.deepChecksum, "deep-checksum", false, "Run the full-table checksum comparison")

	if err := cmd.MarkFlagRequired("tenant"); err != nil {
		fmt.Fprintf(os.Stderr, "Error marking tenant flag required: %v\n", err)
	}

	return cmd
}

func runValidation(ctx context.Context, flags validateFlags) error {
	cfg := GetConfig()

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

	reports, err := service.NewReportWriter(cfg.Reports.OutputDir)
	if err != nil {
		return fmt.Errorf("initialize report writer: %w", err)
	}

	migrationMetrics, metricProvider := setupMetrics(ctx, version.Get().Version)
	defer logMetricTotals(ctx, metricProvider)

	table := service.DefaultTenantNamer.TableName(flags.tenantID)
	session, err := entity.NewMigrationSession(source.Path(), flags.tenantID, table, cfg.Migration.BatchSize)
	if err != nil {
		return fmt.Errorf("create validation session: %w", err)
	}

	validator := service.NewIntegrityValidator(source, target, policy, migrationMetrics)
	report := validator.Validate(ctx, session, service.IntegrityValidatorOptions{
		SampleSize:   cfg.Validation.SampleSize,
		DeepChecksum: flags.deepChecksum || cfg.Validation.DeepChecksum,
	})

	perf := service.NewPerformanceValidator(target, cfg.Validation.LatencyThreshold)
	report.Checks = append(report.Checks, perf.Validate(ctx, table, flags.strict || cfg.Validation.Strict)...)
	if len(cfg.Validation.ExpectedIndexes) > 0 {
		report.Checks = append(report.Checks, perf.CheckIndexes(ctx, table, cfg.Validation.ExpectedIndexes))
	}
	report.FinishedAt = time.Now()

	if _, err := reports.Write(ctx, "validation_report", report); err != nil {
		slogger.ErrorWithError(ctx, err, "Failed to persist validation report", nil)
	}

	slogger.Info(ctx, "Validation finished", slogger.Fields3(
		"tenant_id", flags.tenantID,
		"passed", report.Passed(),
		"checks_failed", report.FailedChecks(),
	))

	if !report.Passed() {
		return fmt.Errorf("validation for tenant %s failed: %v", flags.tenantID, report.FailedChecks())
	}
	return nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newValidateCmd())
}
