package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"tenantmigrate/internal/domain/entity"
	domainerrors "tenantmigrate/internal/domain/errors/domain"
	"tenantmigrate/internal/domain/valueobject"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rollbackFixture struct {
	manager  *BackupManager
	target   *fakeTargetStore
	artifact *entity.BackupArtifact
	restore  string
}

// newRollbackFixture backs up a real source file and populates the target
// table, so a rollback has something to verify, drop, and restore.
func newRollbackFixture(t *testing.T, checker StoreIntegrityChecker) *rollbackFixture {
	t.Helper()
	manager, err := NewBackupManager(t.TempDir(), "dev", checker)
	require.NoError(t, err)

	source := writeSourceFile(t, "pre-migration store state")
	artifact, err := manager.CreateBackup(context.Background(), source, BackupOptions{Verify: true})
	require.NoError(t, err)

	target := newFakeTarget()
	require.NoError(t, target.EnsureTable(context.Background(), testTable))
	record, _ := ConvertRow(makeRawRows(1)[0])
	require.NoError(t, target.UpsertBatch(context.Background(), testTable, []entity.AssetRecord{record}))

	return &rollbackFixture{
		manager:  manager,
		target:   target,
		artifact: artifact,
		restore:  filepath.Join(t.TempDir(), "restored.db"),
	}
}

func newRollbackPlan(t *testing.T, backupID string, emergency, preserve bool) *entity.RollbackPlan {
	t.Helper()
	plan, err := entity.NewRollbackPlan("acme", testTable, backupID, emergency, preserve)
	require.NoError(t, err)
	return plan
}

func TestRollbackOrchestrator_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("full rollback succeeds", func(t *testing.T) {
		fx := newRollbackFixture(t, nil)
		plan := newRollbackPlan(t, fx.artifact.ID, false, false)
		orchestrator := NewRollbackOrchestrator(fx.manager, fx.target, nil, nil)

		require.NoError(t, orchestrator.Execute(ctx, plan, fx.restore))

		assert.True(t, plan.Succeeded())
		assert.Equal(t, valueobject.RollbackStateSuccess, plan.State())
		assert.Len(t, plan.Steps(), 5)
		assert.Empty(t, plan.StepsFailed())

		restored, err := os.ReadFile(fx.restore)
		require.NoError(t, err)
		assert.Equal(t, "pre-migration store state", string(restored))

		exists, err := fx.target.TableExists(ctx, testTable)
		require.NoError(t, err)
		assert.False(t, exists, "tenant table must be gone after rollback")
	})

	t.Run("missing artifact aborts before any step runs", func(t *testing.T) {
		fx := newRollbackFixture(t, nil)
		plan := newRollbackPlan(t, "no-such-backup.db", false, false)
		orchestrator := NewRollbackOrchestrator(fx.manager, fx.target, nil, nil)

		err := orchestrator.Execute(ctx, plan, fx.restore)
		require.ErrorIs(t, err, domainerrors.ErrBackupNotFound)

		assert.Equal(t, valueobject.RollbackStateFailed, plan.State())
		exists, _ := fx.target.TableExists(ctx, testTable)
		assert.True(t, exists, "target must be untouched when the artifact is missing")
	})

	t.Run("corrupt backup stops the rollback", func(t *testing.T) {
		fx := newRollbackFixture(t, nil)
		require.NoError(t, os.WriteFile(fx.artifact.Path, []byte("bit rot"), 0o644))

		plan := newRollbackPlan(t, fx.artifact.ID, false, false)
		orchestrator := NewRollbackOrchestrator(fx.manager, fx.target, nil, nil)

		err := orchestrator.Execute(ctx, plan, fx.restore)
		require.Error(t, err)

		assert.Equal(t, valueobject.RollbackStateFailed, plan.State())
		assert.Contains(t, plan.StepsFailed(), valueobject.RollbackStateVerifyBackup.String())

		exists, _ := fx.target.TableExists(ctx, testTable)
		assert.True(t, exists, "target must not be cleaned after failed verification")
	})

	t.Run("emergency mode restores despite a corrupt backup", func(t *testing.T) {
		fx := newRollbackFixture(t, nil)
		require.NoError(t, os.WriteFile(fx.artifact.Path, []byte("bit rot"), 0o644))

		plan := newRollbackPlan(t, fx.artifact.ID, true, false)
		orchestrator := NewRollbackOrchestrator(fx.manager, fx.target, nil, nil)

		// The waived verification failure stays on the record, but the
		// restore itself runs: whatever bytes the artifact holds are still
		// better than a dropped target with no source at all.
		require.NoError(t, orchestrator.Execute(ctx, plan, fx.restore))

		assert.True(t, plan.Succeeded())
		assert.Equal(t, []string{valueobject.RollbackStateVerifyBackup.String()}, plan.StepsFailed())

		restored, err := os.ReadFile(fx.restore)
		require.NoError(t, err)
		assert.Equal(t, "bit rot", string(restored), "emergency restore must write the artifact bytes")

		exists, _ := fx.target.TableExists(ctx, testTable)
		assert.False(t, exists, "emergency mode must still clean the target")
	})

	t.Run("emergency rollback fails when the restore fails", func(t *testing.T) {
		fx := newRollbackFixture(t, func(context.Context, string) error {
			return domainerrors.ErrSourceCorrupt
		})
		require.NoError(t, os.WriteFile(fx.artifact.Path, []byte("bit rot"), 0o644))

		plan := newRollbackPlan(t, fx.artifact.ID, true, false)
		orchestrator := NewRollbackOrchestrator(fx.manager, fx.target, nil, nil)

		// A target dropped without a restored source is never a success,
		// emergency mode or not.
		err := orchestrator.Execute(ctx, plan, fx.restore)
		require.Error(t, err)

		var stepErr *domainerrors.RollbackStepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, valueobject.RollbackStateRestoreSource.String(), stepErr.Step)
		assert.True(t, stepErr.Critical)

		assert.False(t, plan.Succeeded())
		assert.Equal(t, valueobject.RollbackStateFailed, plan.State())
		assert.Contains(t, plan.StepsFailed(), valueobject.RollbackStateRestoreSource.String())
	})

	t.Run("clean target failure is fatal even in emergency mode", func(t *testing.T) {
		fx := newRollbackFixture(t, nil)
		fx.target.dropErr = domainerrors.ErrTenantLocked

		plan := newRollbackPlan(t, fx.artifact.ID, true, false)
		orchestrator := NewRollbackOrchestrator(fx.manager, fx.target, nil, nil)

		err := orchestrator.Execute(ctx, plan, fx.restore)
		require.Error(t, err)

		assert.Equal(t, valueobject.RollbackStateFailed, plan.State())
		assert.Contains(t, plan.StepsFailed(), valueobject.RollbackStateCleanTarget.String())
	})

	t.Run("preserve copies the table aside before dropping", func(t *testing.T) {
		fx := newRollbackFixture(t, nil)
		plan := newRollbackPlan(t, fx.artifact.ID, false, true)
		orchestrator := NewRollbackOrchestrator(fx.manager, fx.target, nil, nil)

		require.NoError(t, orchestrator.Execute(ctx, plan, fx.restore))

		exists, _ := fx.target.TableExists(ctx, testTable)
		assert.False(t, exists)

		var preservedTables int
		fx.target.mu.Lock()
		for name, rows := range fx.target.tables {
			if name != testTable {
				preservedTables++
				assert.Len(t, rows, 1, "preserved copy %s keeps the migrated rows", name)
			}
		}
		fx.target.mu.Unlock()
		assert.Equal(t, 1, preservedTables)
	})

	t.Run("already absent target table is not an error", func(t *testing.T) {
		fx := newRollbackFixture(t, nil)
		require.NoError(t, fx.target.DropTable(ctx, testTable))

		plan := newRollbackPlan(t, fx.artifact.ID, false, false)
		orchestrator := NewRollbackOrchestrator(fx.manager, fx.target, nil, nil)

		require.NoError(t, orchestrator.Execute(ctx, plan, fx.restore))
		assert.True(t, plan.Succeeded())
	})

	t.Run("failed restore reinstates the pre-rollback snapshot", func(t *testing.T) {
		// The manager's own post-restore checker rejects the restored store,
		// which fails the restore step after the destination was replaced.
		manager, err := NewBackupManager(t.TempDir(), "dev", func(context.Context, string) error {
			return domainerrors.ErrSourceCorrupt
		})
		require.NoError(t, err)
		source := writeSourceFile(t, "backup bytes")
		artifact, err := manager.CreateBackup(ctx, source, BackupOptions{})
		require.NoError(t, err)

		target := newFakeTarget()
		require.NoError(t, target.EnsureTable(ctx, testTable))
		restore := filepath.Join(t.TempDir(), "live.db")
		require.NoError(t, os.WriteFile(restore, []byte("current live store"), 0o644))

		plan := newRollbackPlan(t, artifact.ID, false, false)
		orchestrator := NewRollbackOrchestrator(manager, target, nil, nil)

		err = orchestrator.Execute(ctx, plan, restore)
		require.Error(t, err)
		assert.Contains(t, plan.StepsFailed(), valueobject.RollbackStateRestoreSource.String())

		current, err := os.ReadFile(restore)
		require.NoError(t, err)
		assert.Equal(t, "current live store", string(current), "destination must be reinstated from the snapshot")
	})

	t.Run("verification step fails when restored store is corrupt", func(t *testing.T) {
		checker := func(_ context.Context, path string) error {
			return domainerrors.ErrSourceCorrupt
		}
		fx := newRollbackFixture(t, nil)
		plan := newRollbackPlan(t, fx.artifact.ID, false, false)
		orchestrator := NewRollbackOrchestrator(fx.manager, fx.target, checker, nil)

		err := orchestrator.Execute(ctx, plan, fx.restore)
		require.Error(t, err)
		assert.Contains(t, plan.StepsFailed(), valueobject.RollbackStateVerifyRollback.String())
	})
}
