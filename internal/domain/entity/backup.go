package entity

import (
	"time"
)

// BackupMetadata is the sidecar record persisted next to a backup artifact as
// <artifact>.metadata.json. Field names match the sidecar wire format.
type BackupMetadata struct {
	SourcePath        string    `json:"sourcePath"`
	Timestamp         time.Time `json:"timestamp"`
	OriginalSizeBytes int64     `json:"originalSizeBytes"`
	BackupSizeBytes   int64     `json:"backupSizeBytes"`
	CompressionRatio  float64   `json:"compressionRatio"`
	ChecksumSHA256    string    `json:"checksumSHA256"`
	ToolVersion       string    `json:"toolVersion"`
}

// BackupArtifact is an immutable, checksummed copy of the source at a point in
// time. The stored checksum must equal the checksum recomputed from the
// artifact's bytes at restore time, or the artifact is rejected.
type BackupArtifact struct {
	ID           string         `json:"id"`
	Path         string         `json:"path"`
	MetadataPath string         `json:"metadataPath"`
	Compressed   bool           `json:"compressed"`
	Metadata     BackupMetadata `json:"metadata"`
}

// Checksum returns the artifact's stored SHA-256 checksum.
func (a *BackupArtifact) Checksum() string {
	return a.Metadata.ChecksumSHA256
}

// Age returns how long ago the artifact was created.
func (a *BackupArtifact) Age(now time.Time) time.Duration {
	return now.Sub(a.Metadata.Timestamp)
}

// Expired reports whether the artifact is older than the retention policy.
func (a *BackupArtifact) Expired(now time.Time, retentionDays int) bool {
	if retentionDays <= 0 {
		return false
	}
	return a.Age(now) > time.Duration(retentionDays)*24*time.Hour
}
