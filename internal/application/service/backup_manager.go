package service

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/domain/entity"
	domainerrors "tenantmigrate/internal/domain/errors/domain"
)

// metadataSuffix is appended to an artifact path to name its sidecar.
const metadataSuffix = ".metadata.json"

// pinSuffix names the sidecar that marks an artifact as referenced by an
// in-flight rollback. Pins live on disk so a cleanup run in another process
// honors them too.
const pinSuffix = ".pin"

// BackupOptions controls artifact creation.
type BackupOptions struct {
	Compress bool
	Verify   bool
}

// StoreIntegrityChecker validates a restored store file. Injected so the
// manager stays independent of the store engine.
type StoreIntegrityChecker func(ctx context.Context, path string) error

// BackupManager creates, verifies, restores, and expires backup artifacts.
// A reference registry, mirrored to pin sidecar files, keeps artifacts
// pinned by in-flight rollback plans out of cleanup's reach even when the
// cleanup runs in a separate process.
type BackupManager struct {
	dir         string
	toolVersion string
	checker     StoreIntegrityChecker

	mu   sync.Mutex
	pins map[string]int
}

// NewBackupManager creates a BackupManager writing artifacts under dir.
func NewBackupManager(dir, toolVersion string, checker StoreIntegrityChecker) (*BackupManager, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: backup directory cannot be empty", domainerrors.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory %s: %w", dir, err)
	}
	return &BackupManager{
		dir:         dir,
		toolVersion: toolVersion,
		checker:     checker,
		pins:        make(map[string]int),
	}, nil
}

// CreateBackup snapshots the source file into a checksummed artifact. The
// checksum covers the final (possibly compressed) bytes. With Verify set, the
// artifact is independently re-read and its checksum recomputed before
// success; any mismatch discards the artifact.
func (m *BackupManager) CreateBackup(ctx context.Context, sourcePath string, opts BackupOptions) (*entity.BackupArtifact, error) {
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domainerrors.ErrSourceNotFound, sourcePath)
		}
		return nil, fmt.Errorf("stat source %s: %w", sourcePath, err)
	}

	timestamp := time.Now()
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	name := fmt.Sprintf("%s_%s.db", base, timestamp.UTC().Format("20060102T150405Z"))
	if opts.Compress {
		name += ".gz"
	}
	artifactPath := filepath.Join(m.dir, name)

	checksum, written, err := m.writeArtifact(ctx, sourcePath, artifactPath, opts.Compress)
	if err != nil {
		os.Remove(artifactPath)
		return nil, err
	}

	if opts.Verify {
		recomputed, err := fileChecksum(artifactPath)
		if err != nil {
			os.Remove(artifactPath)
			return nil, fmt.Errorf("%w: re-read failed: %v", domainerrors.ErrBackupVerificationFailed, err)
		}
		if recomputed != checksum {
			os.Remove(artifactPath)
			return nil, fmt.Errorf("%w: checksum %s does not match %s",
				domainerrors.ErrBackupVerificationFailed, recomputed, checksum)
		}
	}

	ratio := 1.0
	if srcInfo.Size() > 0 {
		ratio = float64(written) / float64(srcInfo.Size())
	}

	artifact := &entity.BackupArtifact{
		ID:           name,
		Path:         artifactPath,
		MetadataPath: artifactPath + metadataSuffix,
		Compressed:   opts.Compress,
		Metadata: entity.BackupMetadata{
			SourcePath:        sourcePath,
			Timestamp:         timestamp,
			OriginalSizeBytes: srcInfo.Size(),
			BackupSizeBytes:   written,
			CompressionRatio:  ratio,
			ChecksumSHA256:    checksum,
			ToolVersion:       m.toolVersion,
		},
	}

	if err := m.writeMetadata(artifact); err != nil {
		os.Remove(artifactPath)
		return nil, err
	}

	slogger.Info(ctx, "Backup created", slogger.Fields3(
		"artifact", artifact.ID,
		"size_bytes", written,
		"compressed", opts.Compress,
	))
	return artifact, nil
}

// writeArtifact copies source to dest, optionally gzip-compressed, and
// returns the SHA-256 of the final bytes plus the byte count.
func (m *BackupManager) writeArtifact(ctx context.Context, sourcePath, destPath string, compress bool) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return "", 0, fmt.Errorf("open source %s: %w", sourcePath, err)
	}
	defer src.Close()

	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create artifact %s: %w", destPath, err)
	}
	defer dest.Close()

	hasher := sha256.New()
	counter := &countingWriter{}
	sink := io.MultiWriter(dest, hasher, counter)

	if compress {
		// The checksum covers the compressed bytes, so the gzip writer sits
		// between the copy and the hash.
		gz := gzip.NewWriter(sink)
		if _, err := io.Copy(gz, src); err != nil {
			return "", 0, fmt.Errorf("compress source: %w", err)
		}
		if err := gz.Close(); err != nil {
			return "", 0, fmt.Errorf("finish compression: %w", err)
		}
	} else {
		if _, err := io.Copy(sink, src); err != nil {
			return "", 0, fmt.Errorf("copy source: %w", err)
		}
	}

	if err := dest.Sync(); err != nil {
		return "", 0, fmt.Errorf("sync artifact: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), counter.n, nil
}

func (m *BackupManager) writeMetadata(artifact *entity.BackupArtifact) error {
	data, err := json.MarshalIndent(artifact.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal backup metadata: %w", err)
	}
	if err := os.WriteFile(artifact.MetadataPath, data, 0o644); err != nil {
		return fmt.Errorf("write backup metadata: %w", err)
	}
	return nil
}

// Get loads an artifact by ID from its metadata sidecar.
func (m *BackupManager) Get(id string) (*entity.BackupArtifact, error) {
	artifactPath := filepath.Join(m.dir, id)
	metaPath := artifactPath + metadataSuffix

	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domainerrors.ErrBackupNotFound, id)
		}
		return nil, fmt.Errorf("read metadata for %s: %w", id, err)
	}

	var meta entity.BackupMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata for %s: %w", id, err)
	}

	return &entity.BackupArtifact{
		ID:           id,
		Path:         artifactPath,
		MetadataPath: metaPath,
		Compressed:   strings.HasSuffix(id, ".gz"),
		Metadata:     meta,
	}, nil
}

// List returns every artifact in the backup directory.
func (m *BackupManager) List() ([]*entity.BackupArtifact, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var artifacts []*entity.BackupArtifact
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), metadataSuffix) || strings.HasSuffix(e.Name(), pinSuffix) {
			continue
		}
		artifact, err := m.Get(e.Name())
		if err != nil {
			// Artifacts without a readable sidecar are skipped, not fatal.
			slogger.WarnNoCtx("Skipping artifact without metadata", slogger.Field("name", e.Name()))
			continue
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// Verify recomputes the artifact's checksum from its bytes and compares it
// to the stored checksum.
func (m *BackupManager) Verify(ctx context.Context, artifact *entity.BackupArtifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recomputed, err := fileChecksum(artifact.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrBackupVerificationFailed, err)
	}
	if recomputed != artifact.Checksum() {
		return fmt.Errorf("%w: stored %s, recomputed %s",
			domainerrors.ErrChecksumMismatch, artifact.Checksum(), recomputed)
	}
	return nil
}

// Restore writes the artifact's store back to destPath, decompressing if
// needed, then re-validates the restored store's self-integrity. It verifies
// the artifact checksum first and is idempotent for the same artifact and
// destination.
func (m *BackupManager) Restore(ctx context.Context, artifact *entity.BackupArtifact, destPath string) error {
	return m.restore(ctx, artifact, destPath, false)
}

// ForceRestore restores without the artifact checksum verification, for
// emergency rollbacks where a damaged artifact is still better than no
// source at all. The restored store's self-integrity check still runs.
func (m *BackupManager) ForceRestore(ctx context.Context, artifact *entity.BackupArtifact, destPath string) error {
	return m.restore(ctx, artifact, destPath, true)
}

func (m *BackupManager) restore(ctx context.Context, artifact *entity.BackupArtifact, destPath string, skipVerify bool) error {
	if skipVerify {
		slogger.Warn(ctx, "Restoring without artifact checksum verification",
			slogger.Field("artifact", artifact.ID))
	} else if err := m.Verify(ctx, artifact); err != nil {
		return err
	}

	src, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", artifact.ID, err)
	}
	defer src.Close()

	var reader io.Reader = src
	if artifact.Compressed {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("%w: gzip open: %v", domainerrors.ErrBackupVerificationFailed, err)
		}
		defer gz.Close()
		reader = gz
	}

	// Write to a temp file first so a failed restore never leaves a
	// truncated store at the destination.
	tmpPath := destPath + ".restoring"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create restore temp file: %w", err)
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write restored store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close restored store: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("move restored store into place: %w", err)
	}

	if m.checker != nil {
		if err := m.checker(ctx, destPath); err != nil {
			return fmt.Errorf("restored store failed integrity check: %w", err)
		}
	}

	slogger.Info(ctx, "Backup restored", slogger.Fields2(
		"artifact", artifact.ID,
		"dest", destPath,
	))
	return nil
}

// PinArtifact marks an artifact as referenced by an in-flight rollback plan,
// shielding it from cleanup. The pin is written to a sidecar file so other
// processes see it too.
func (m *BackupManager) PinArtifact(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pinBody := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(m.pinPath(id), []byte(pinBody), 0o644); err != nil {
		return fmt.Errorf("pin artifact %s: %w", id, err)
	}
	m.pins[id]++
	return nil
}

// UnpinArtifact releases a rollback plan's reference. The pin sidecar is
// removed when the last reference held by this process goes.
func (m *BackupManager) UnpinArtifact(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pins[id] > 1 {
		m.pins[id]--
		return
	}
	delete(m.pins, id)
	if err := os.Remove(m.pinPath(id)); err != nil && !os.IsNotExist(err) {
		slogger.WarnNoCtx("Failed to remove pin sidecar", slogger.Field("artifact", id))
	}
}

func (m *BackupManager) pinPath(id string) string {
	return filepath.Join(m.dir, id+pinSuffix)
}

// pinned reports whether the artifact is referenced by an in-flight plan,
// in this process or any other.
func (m *BackupManager) pinned(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pins[id] > 0 {
		return true
	}
	_, err := os.Stat(m.pinPath(id))
	return err == nil
}

// Remove deletes an artifact and its sidecar. An artifact referenced by an
// in-flight rollback is refused.
func (m *BackupManager) Remove(id string) error {
	artifact, err := m.Get(id)
	if err != nil {
		return err
	}
	if m.pinned(id) {
		return fmt.Errorf("%w: %s", domainerrors.ErrBackupInUse, id)
	}
	if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact %s: %w", id, err)
	}
	if err := os.Remove(artifact.MetadataPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove metadata for %s: %w", id, err)
	}
	return nil
}

// CleanupExpired removes artifacts older than the retention policy. Pinned
// artifacts are never removed regardless of age. Returns the removed IDs.
func (m *BackupManager) CleanupExpired(ctx context.Context, retentionDays int) ([]string, error) {
	artifacts, err := m.List()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var removed []string
	for _, artifact := range artifacts {
		if !artifact.Expired(now, retentionDays) {
			continue
		}
		if m.pinned(artifact.ID) {
			slogger.Warn(ctx, "Expired artifact is pinned by an in-flight rollback, keeping",
				slogger.Field("artifact", artifact.ID))
			continue
		}
		if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove artifact %s: %w", artifact.ID, err)
		}
		if err := os.Remove(artifact.MetadataPath); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove metadata for %s: %w", artifact.ID, err)
		}
		removed = append(removed, artifact.ID)
	}

	if len(removed) > 0 {
		slogger.Info(ctx, "Expired backups removed", slogger.Fields2(
			"count", len(removed),
			"retention_days", retentionDays,
		))
	}
	return removed, nil
}

// fileChecksum computes the SHA-256 of a file's bytes.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
