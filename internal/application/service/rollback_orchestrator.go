package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"tenantmigrate/internal/application/common/metrics"
	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/domain/entity"
	domainerrors "tenantmigrate/internal/domain/errors/domain"
	"tenantmigrate/internal/domain/valueobject"
	"tenantmigrate/internal/port/outbound"
)

// RollbackOrchestrator undoes a migration: verify the backup, clean the
// target, restore the source, re-verify. It depends only on the backup
// artifact and the target connection; the migration itself need not have
// run.
type RollbackOrchestrator struct {
	backups *BackupManager
	target  outbound.TargetStore
	checker StoreIntegrityChecker
	metrics *metrics.MigrationMetrics
}

// NewRollbackOrchestrator creates a RollbackOrchestrator. metrics may be nil.
func NewRollbackOrchestrator(
	backups *BackupManager,
	target outbound.TargetStore,
	checker StoreIntegrityChecker,
	migrationMetrics *metrics.MigrationMetrics,
) *RollbackOrchestrator {
	return &RollbackOrchestrator{
		backups: backups,
		target:  target,
		checker: checker,
		metrics: migrationMetrics,
	}
}

// Execute drives the plan through the state machine until it reaches a
// terminal state. Every step's outcome is recorded on the plan regardless of
// whether later steps run.
func (o *RollbackOrchestrator) Execute(ctx context.Context, plan *entity.RollbackPlan, restorePath string) error {
	artifact, err := o.backups.Get(plan.BackupID())
	if err != nil {
		return o.abort(plan, valueobject.RollbackStateInit, err)
	}

	// Pin the artifact so retention cleanup, even one running in another
	// process, cannot remove it mid-rollback.
	if err := o.backups.PinArtifact(artifact.ID); err != nil {
		return o.abort(plan, valueobject.RollbackStateInit, err)
	}
	defer o.backups.UnpinArtifact(artifact.ID)

	// INIT carries no work of its own.
	if err := plan.RecordStep(stepResult(valueobject.RollbackStateInit, true, "plan initialized", nil)); err != nil {
		return err
	}

	for !plan.State().IsTerminal() {
		var result entity.RollbackStepResult

		switch plan.State() {
		case valueobject.RollbackStateVerifyBackup:
			result = o.verifyBackup(ctx, plan, artifact)
		case valueobject.RollbackStateCleanTarget:
			result = o.cleanTarget(ctx, plan)
		case valueobject.RollbackStateRestoreSource:
			result = o.restoreSource(ctx, plan, artifact, restorePath)
		case valueobject.RollbackStateVerifyRollback:
			result = o.verifyRollback(ctx, plan, restorePath)
		default:
			return fmt.Errorf("unexpected rollback state %s", plan.State())
		}

		if o.metrics != nil {
			o.metrics.RecordRollbackStep(ctx, result.Step.String(), result.Success)
		}
		if err := plan.RecordStep(result); err != nil {
			return err
		}
	}

	slogger.Info(ctx, "Rollback finished", slogger.Fields3(
		"plan_id", plan.ID().String(),
		"final_state", plan.State().String(),
		"steps_failed", plan.StepsFailed(),
	))

	if !plan.Succeeded() {
		steps := plan.Steps()
		last := steps[len(steps)-1]
		return &domainerrors.RollbackStepError{
			Step:     last.Step.String(),
			Critical: last.Step.IsCritical(),
			Err:      errors.New(last.Error),
		}
	}
	return nil
}

// verifyBackup recomputes the artifact checksum. A mismatch fails the step;
// in emergency mode the plan proceeds past the failure with a logged warning.
func (o *RollbackOrchestrator) verifyBackup(ctx context.Context, plan *entity.RollbackPlan, artifact *entity.BackupArtifact) entity.RollbackStepResult {
	if err := o.backups.Verify(ctx, artifact); err != nil {
		if plan.EmergencyMode() {
			slogger.Warn(ctx, "Backup verification failed, proceeding in emergency mode",
				slogger.Field("error", err.Error()))
		}
		return stepResult(valueobject.RollbackStateVerifyBackup, false, "", err)
	}
	return stepResult(valueobject.RollbackStateVerifyBackup, true,
		fmt.Sprintf("checksum %s verified", artifact.Checksum()), nil)
}

// cleanTarget drops the tenant-scoped table and its indexes. With preserve
// set, the table is first copied to a timestamped side table. This step is
// critical: its failure always fails the whole rollback.
func (o *RollbackOrchestrator) cleanTarget(ctx context.Context, plan *entity.RollbackPlan) entity.RollbackStepResult {
	table := plan.TargetTable()

	exists, err := o.target.TableExists(ctx, table)
	if err != nil {
		return stepResult(valueobject.RollbackStateCleanTarget, false, "", err)
	}
	if !exists {
		return stepResult(valueobject.RollbackStateCleanTarget, true, "target table already absent", nil)
	}

	detail := "table dropped"
	if plan.Preserve() {
		sideTable := fmt.Sprintf("%s_preserved_%s", table, time.Now().UTC().Format("20060102T150405Z"))
		if err := o.target.CopyTable(ctx, table, sideTable); err != nil {
			return stepResult(valueobject.RollbackStateCleanTarget, false, "", fmt.Errorf("preserve copy failed: %w", err))
		}
		detail = fmt.Sprintf("table preserved as %s, then dropped", sideTable)
	}

	if err := o.target.DropTable(ctx, table); err != nil {
		return stepResult(valueobject.RollbackStateCleanTarget, false, "", err)
	}
	return stepResult(valueobject.RollbackStateCleanTarget, true, detail, nil)
}

// restoreSource restores the artifact over the destination path. The
// destination's current content is snapshotted first; if restoration fails,
// the snapshot is reinstated. Emergency plans restore without the artifact
// checksum verification, so that a waived VERIFY_BACKUP failure does not
// resurface here and strand the tenant with a dropped target.
func (o *RollbackOrchestrator) restoreSource(ctx context.Context, plan *entity.RollbackPlan, artifact *entity.BackupArtifact, restorePath string) entity.RollbackStepResult {
	snapshotPath := ""
	if _, err := os.Stat(restorePath); err == nil {
		snapshotPath = fmt.Sprintf("%s.pre_rollback_%s", restorePath, time.Now().UTC().Format("20060102T150405Z"))
		if err := copyFile(restorePath, snapshotPath); err != nil {
			return stepResult(valueobject.RollbackStateRestoreSource, false, "",
				fmt.Errorf("snapshot of current destination failed: %w", err))
		}
	}

	restore := o.backups.Restore
	if plan.EmergencyMode() {
		restore = o.backups.ForceRestore
	}
	if err := restore(ctx, artifact, restorePath); err != nil {
		if snapshotPath != "" {
			if reinstateErr := copyFile(snapshotPath, restorePath); reinstateErr != nil {
				return stepResult(valueobject.RollbackStateRestoreSource, false, "",
					fmt.Errorf("restore failed (%v) and snapshot reinstate failed: %w", err, reinstateErr))
			}
			return stepResult(valueobject.RollbackStateRestoreSource, false,
				"destination reinstated from pre-rollback snapshot", err)
		}
		return stepResult(valueobject.RollbackStateRestoreSource, false, "", err)
	}

	detail := "source restored"
	if snapshotPath != "" {
		detail = fmt.Sprintf("source restored, previous content kept at %s", snapshotPath)
	}
	return stepResult(valueobject.RollbackStateRestoreSource, true, detail, nil)
}

// verifyRollback runs a reduced integrity pass: the restored source must
// pass its self-integrity check and the target table must no longer exist.
func (o *RollbackOrchestrator) verifyRollback(ctx context.Context, plan *entity.RollbackPlan, restorePath string) entity.RollbackStepResult {
	if o.checker != nil {
		if err := o.checker(ctx, restorePath); err != nil {
			return stepResult(valueobject.RollbackStateVerifyRollback, false, "", err)
		}
	}

	exists, err := o.target.TableExists(ctx, plan.TargetTable())
	if err != nil {
		return stepResult(valueobject.RollbackStateVerifyRollback, false, "", err)
	}
	if exists {
		return stepResult(valueobject.RollbackStateVerifyRollback, false, "",
			fmt.Errorf("target table %s still exists", plan.TargetTable()))
	}

	return stepResult(valueobject.RollbackStateVerifyRollback, true,
		"restored source passes integrity check, target table absent", nil)
}

func (o *RollbackOrchestrator) abort(plan *entity.RollbackPlan, step valueobject.RollbackState, err error) error {
	if abortErr := plan.Abort(stepResult(step, false, "", err)); abortErr != nil {
		return abortErr
	}
	return err
}

func stepResult(step valueobject.RollbackState, success bool, detail string, err error) entity.RollbackStepResult {
	now := time.Now()
	result := entity.RollbackStepResult{
		Step:       step,
		Success:    success,
		Detail:     detail,
		StartedAt:  now,
		FinishedAt: now,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// copyFile copies src to dst, replacing dst.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
