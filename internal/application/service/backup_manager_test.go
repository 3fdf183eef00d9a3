package service

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainerrors "tenantmigrate/internal/domain/errors/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSourceFile creates a store file whose name is derived from the
// content, so artifacts created in the same second never collide.
func writeSourceFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("assets_%x.db", sha256.Sum256([]byte(content))))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestManager(t *testing.T) *BackupManager {
	t.Helper()
	manager, err := NewBackupManager(t.TempDir(), "1.2.3-test", nil)
	require.NoError(t, err)
	return manager
}

func TestNewBackupManager(t *testing.T) {
	t.Run("rejects empty directory", func(t *testing.T) {
		_, err := NewBackupManager("", "dev", nil)
		require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
	})

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "backups")
		_, err := NewBackupManager(dir, "dev", nil)
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestBackupManager_CreateBackup(t *testing.T) {
	ctx := context.Background()

	t.Run("uncompressed copy with metadata sidecar", func(t *testing.T) {
		manager := newTestManager(t)
		source := writeSourceFile(t, "store-content-v1")

		artifact, err := manager.CreateBackup(ctx, source, BackupOptions{Verify: true})
		require.NoError(t, err)

		copied, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		assert.Equal(t, "store-content-v1", string(copied))

		assert.Equal(t, source, artifact.Metadata.SourcePath)
		assert.EqualValues(t, len("store-content-v1"), artifact.Metadata.OriginalSizeBytes)
		assert.Equal(t, artifact.Metadata.OriginalSizeBytes, artifact.Metadata.BackupSizeBytes)
		assert.Equal(t, "1.2.3-test", artifact.Metadata.ToolVersion)
		assert.NotEmpty(t, artifact.Checksum())
		assert.False(t, artifact.Compressed)

		// The sidecar must round-trip through Get.
		loaded, err := manager.Get(artifact.ID)
		require.NoError(t, err)
		assert.Equal(t, artifact.Checksum(), loaded.Checksum())
		assert.Equal(t, artifact.Metadata.SourcePath, loaded.Metadata.SourcePath)
	})

	t.Run("compressed artifact decompresses to the original", func(t *testing.T) {
		manager := newTestManager(t)
		source := writeSourceFile(t, "store-content-compressible-aaaaaaaaaaaaaaaa")

		artifact, err := manager.CreateBackup(ctx, source, BackupOptions{Compress: true, Verify: true})
		require.NoError(t, err)
		assert.True(t, artifact.Compressed)
		assert.True(t, filepath.Ext(artifact.Path) == ".gz")

		f, err := os.Open(artifact.Path)
		require.NoError(t, err)
		defer f.Close()
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		content, err := io.ReadAll(gz)
		require.NoError(t, err)
		assert.Equal(t, "store-content-compressible-aaaaaaaaaaaaaaaa", string(content))
	})

	t.Run("missing source", func(t *testing.T) {
		manager := newTestManager(t)
		_, err := manager.CreateBackup(ctx, filepath.Join(t.TempDir(), "absent.db"), BackupOptions{})
		require.ErrorIs(t, err, domainerrors.ErrSourceNotFound)
	})
}

func TestBackupManager_Verify(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	source := writeSourceFile(t, "verify-me")

	artifact, err := manager.CreateBackup(ctx, source, BackupOptions{})
	require.NoError(t, err)

	t.Run("intact artifact passes", func(t *testing.T) {
		require.NoError(t, manager.Verify(ctx, artifact))
	})

	t.Run("tampered artifact fails with checksum mismatch", func(t *testing.T) {
		require.NoError(t, os.WriteFile(artifact.Path, []byte("tampered"), 0o644))
		err := manager.Verify(ctx, artifact)
		require.ErrorIs(t, err, domainerrors.ErrChecksumMismatch)
	})
}

func TestBackupManager_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		manager := newTestManager(t)
		source := writeSourceFile(t, "original-store")
		artifact, err := manager.CreateBackup(ctx, source, BackupOptions{Compress: true})
		require.NoError(t, err)

		dest := filepath.Join(t.TempDir(), "restored.db")
		require.NoError(t, manager.Restore(ctx, artifact, dest))

		restored, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "original-store", string(restored))
	})

	t.Run("overwrites existing destination atomically", func(t *testing.T) {
		manager := newTestManager(t)
		source := writeSourceFile(t, "good-state")
		artifact, err := manager.CreateBackup(ctx, source, BackupOptions{})
		require.NoError(t, err)

		dest := writeSourceFile(t, "corrupted-state")
		require.NoError(t, manager.Restore(ctx, artifact, dest))

		restored, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "good-state", string(restored))
	})

	t.Run("refuses to restore a tampered artifact", func(t *testing.T) {
		manager := newTestManager(t)
		source := writeSourceFile(t, "pristine")
		artifact, err := manager.CreateBackup(ctx, source, BackupOptions{})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(artifact.Path, []byte("bad bytes"), 0o644))

		dest := filepath.Join(t.TempDir(), "restored.db")
		err = manager.Restore(ctx, artifact, dest)
		require.ErrorIs(t, err, domainerrors.ErrChecksumMismatch)
		_, statErr := os.Stat(dest)
		assert.True(t, os.IsNotExist(statErr), "failed restore must not create the destination")
	})

	t.Run("force restore writes a tampered artifact's bytes", func(t *testing.T) {
		manager := newTestManager(t)
		source := writeSourceFile(t, "pristine bytes")
		artifact, err := manager.CreateBackup(ctx, source, BackupOptions{})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(artifact.Path, []byte("damaged bytes"), 0o644))

		dest := filepath.Join(t.TempDir(), "restored.db")
		require.NoError(t, manager.ForceRestore(ctx, artifact, dest))

		restored, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "damaged bytes", string(restored))
	})

	t.Run("runs the injected integrity checker", func(t *testing.T) {
		checkerErr := errors.New("malformed store header")
		manager, err := NewBackupManager(t.TempDir(), "dev", func(context.Context, string) error {
			return checkerErr
		})
		require.NoError(t, err)

		source := writeSourceFile(t, "whatever")
		artifact, err := manager.CreateBackup(ctx, source, BackupOptions{})
		require.NoError(t, err)

		err = manager.Restore(ctx, artifact, filepath.Join(t.TempDir(), "restored.db"))
		require.ErrorIs(t, err, checkerErr)
	})
}

func TestBackupManager_ListAndGet(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	first, err := manager.CreateBackup(ctx, writeSourceFile(t, "one"), BackupOptions{})
	require.NoError(t, err)
	second, err := manager.CreateBackup(ctx, writeSourceFile(t, "two"), BackupOptions{Compress: true})
	require.NoError(t, err)

	artifacts, err := manager.List()
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	ids := []string{artifacts[0].ID, artifacts[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)

	t.Run("unknown id", func(t *testing.T) {
		_, err := manager.Get("nonexistent.db")
		require.ErrorIs(t, err, domainerrors.ErrBackupNotFound)
	})
}

func TestBackupManager_Remove(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	artifact, err := manager.CreateBackup(ctx, writeSourceFile(t, "removable"), BackupOptions{})
	require.NoError(t, err)

	t.Run("refuses an artifact referenced by a rollback", func(t *testing.T) {
		require.NoError(t, manager.PinArtifact(artifact.ID))
		require.ErrorIs(t, manager.Remove(artifact.ID), domainerrors.ErrBackupInUse)
		manager.UnpinArtifact(artifact.ID)
	})

	t.Run("removes the artifact and its sidecar", func(t *testing.T) {
		require.NoError(t, manager.Remove(artifact.ID))
		_, err := manager.Get(artifact.ID)
		require.ErrorIs(t, err, domainerrors.ErrBackupNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		require.ErrorIs(t, manager.Remove("no-such.db"), domainerrors.ErrBackupNotFound)
	})
}

func TestBackupManager_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	artifact, err := manager.CreateBackup(ctx, writeSourceFile(t, "aging"), BackupOptions{})
	require.NoError(t, err)
	backdateArtifact(t, artifact.MetadataPath, 45*24*time.Hour)

	fresh, err := manager.CreateBackup(ctx, writeSourceFile(t, "fresh"), BackupOptions{})
	require.NoError(t, err)

	t.Run("pinned artifacts survive cleanup", func(t *testing.T) {
		require.NoError(t, manager.PinArtifact(artifact.ID))
		removed, err := manager.CleanupExpired(ctx, 30)
		require.NoError(t, err)
		assert.Empty(t, removed)
		manager.UnpinArtifact(artifact.ID)
	})

	t.Run("pins are honored across manager instances", func(t *testing.T) {
		require.NoError(t, manager.PinArtifact(artifact.ID))

		// A cleanup run in another process sees the pin sidecar, not the
		// in-memory registry.
		other, err := NewBackupManager(manager.dir, "1.2.3-test", nil)
		require.NoError(t, err)
		removed, err := other.CleanupExpired(ctx, 30)
		require.NoError(t, err)
		assert.Empty(t, removed)

		manager.UnpinArtifact(artifact.ID)
	})

	t.Run("expired artifacts are removed with their sidecars", func(t *testing.T) {
		removed, err := manager.CleanupExpired(ctx, 30)
		require.NoError(t, err)
		require.Equal(t, []string{artifact.ID}, removed)

		_, err = os.Stat(artifact.Path)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(artifact.MetadataPath)
		assert.True(t, os.IsNotExist(err))

		// The fresh artifact is untouched.
		_, err = manager.Get(fresh.ID)
		require.NoError(t, err)
	})

	t.Run("zero retention disables cleanup", func(t *testing.T) {
		removed, err := manager.CleanupExpired(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, removed)
	})
}

// backdateArtifact rewrites the sidecar's timestamp to age the artifact.
func backdateArtifact(t *testing.T, metadataPath string, age time.Duration) {
	t.Helper()
	data, err := os.ReadFile(metadataPath)
	require.NoError(t, err)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(data, &meta))
	meta["timestamp"] = time.Now().Add(-age).Format(time.RFC3339Nano)

	updated, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(metadataPath, updated, 0o644))
}
