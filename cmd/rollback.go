package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"tenantmigrate/internal/adapter/outbound/sqlite"
	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/application/service"
	"tenantmigrate/internal/domain/entity"
	"tenantmigrate/internal/port/outbound"
	"tenantmigrate/internal/version"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type rollbackFlags struct {
	tenantID    string
	backupID    string
	restorePath string
	emergency   bool
	preserve    bool
}

// newRollbackCmd creates and returns the rollback command.
func newRollbackCmd() *cobra.Command {
	var flags rollbackFlags

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll a tenant back to its pre-migration state",
		Long: `Roll a tenant back to its pre-migration state from a backup artifact.

The rollback runs as a staged sequence: verify the backup, clean the
tenant's target table, restore the source store file, then verify the
restored state. A failed clean or restore step aborts immediately. With
--emergency a failed backup verification is waived, the artifact is
restored as-is, and the rollback continues; the waiver is recorded in the
rollback report. With --preserve the target table is copied aside before
it is dropped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return runRollback(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.tenantID, "tenant", "", "Tenant identifier")
	cmd.Flags().StringVar(&flags.backupID, "backup-id", "", "Backup artifact to restore from")
	cmd.Flags().StringVar(&flags.restorePath, "restore-path", "", "Destination for the restored store (default: the artifact's original source path)")
	cmd.Flags().BoolVar(&flags.emergency, "emergency", false, "Continue past a failed backup verification")
	cmd.Flags().BoolVar(&flags.preserve, "preserve", false, "Copy the target table aside before dropping it")

	for _, name := range []string{"tenant", "backup-id"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			fmt.Fprintf(os.Stderr, "Error marking %s flag required: %v\n", name, err)
		}
	}

	return cmd
}

func runRollback(ctx context.Context, flags rollbackFlags) error {
	cfg := GetConfig()
	toolVersion := version.Get().Version

	pool, err := setupTargetPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to target: %w", err)
	}
	defer pool.Close()
	target := postgresTarget(cfg, pool)

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
	plan, err := entity.NewRollbackPlan(flags.tenantID, table, flags.backupID, flags.emergency, flags.preserve)
	if err != nil {
		return fmt.Errorf("create rollback plan: %w", err)
	}

	restorePath := flags.restorePath
	if restorePath == "" {
		artifact, err := backups.Get(flags.backupID)
		if err != nil {
			return fmt.Errorf("resolve restore path: %w", err)
		}
		restorePath = artifact.Metadata.SourcePath
	}

	orchestrator := service.NewRollbackOrchestrator(backups, target, sqlite.CheckFileIntegrity, migrationMetrics)
	execErr := orchestrator.Execute(ctx, plan, restorePath)

	report := &entity.RollbackReport{
		PlanID:        plan.ID().String(),
		TenantID:      plan.TenantID(),
		TargetTable:   plan.TargetTable(),
		BackupID:      plan.BackupID(),
		EmergencyMode: plan.EmergencyMode(),
		FinalState:    string(plan.State()),
		Steps:         plan.Steps(),
		StepsFailed:   plan.StepsFailed(),
		GeneratedAt:   time.Now(),
		ToolVersion:   toolVersion,
	}
	if _, err := reports.Write(ctx, "rollback_report", report); err != nil {
		slogger.ErrorWithError(ctx, err, "Failed to persist rollback report", nil)
	}

	if plan.Succeeded() {
		publishRollbackEvent(ctx, publisher, plan)
		slogger.Info(ctx, "Rollback completed", slogger.Fields2(
			"tenant_id", flags.tenantID,
			"backup_id", flags.backupID,
		))
		return nil
	}

	slogger.Error(ctx, "Rollback failed", slogger.Fields3(
		"tenant_id", flags.tenantID,
		"final_state", string(plan.State()),
		"steps_failed", plan.StepsFailed(),
	))
	if execErr != nil {
		return fmt.Errorf("rollback for tenant %s failed: %w", flags.tenantID, execErr)
	}
	return fmt.Errorf("rollback for tenant %s failed in steps %v", flags.tenantID, plan.StepsFailed())
}

func publishRollbackEvent(ctx context.Context, publisher outbound.EventPublisher, plan *entity.RollbackPlan) {
	if publisher == nil {
		return
	}
	event := outbound.MigrationEvent{
		SessionID: plan.ID(),
		TenantID:  plan.TenantID(),
		Subject:   outbound.EventRollbackCompleted,
		Detail:    fmt.Sprintf("restored from %s", plan.BackupID()),
		Timestamp: time.Now(),
		MessageID: uuid.New().String(),
	}
	if err := publisher.Publish(ctx, event); err != nil {
		slogger.Warn(ctx, "Failed to publish rollback event", slogger.Field("error", err.Error()))
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newRollbackCmd())
}
