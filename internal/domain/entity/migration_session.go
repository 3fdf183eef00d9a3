package entity

import (
	"errors"
	"fmt"
	"time"

	"tenantmigrate/internal/domain/valueobject"

	"github.com/google/uuid"
)

// MigrationSession identifies one migration attempt against one tenant. It is
// created at invocation, mutated by the migrator and validators as phases run,
// and discarded after its report is persisted.
type MigrationSession struct {
	id              uuid.UUID
	sourcePath      string
	tenantID        string
	targetTable     string
	batchSize       int
	status          valueobject.SessionStatus
	committedOffset int64
	rowsMigrated    int64
	rowsSkipped     int64
	warnings        []string
	startedAt       *time.Time
	completedAt     *time.Time
	errorMessage    *string
	createdAt       time.Time
	updatedAt       time.Time
}

// DefaultBatchSize is used when a session is created with a non-positive batch size.
const DefaultBatchSize = 1000

// NewMigrationSession creates a new MigrationSession entity.
func NewMigrationSession(sourcePath, tenantID, targetTable string, batchSize int) (*MigrationSession, error) {
	if sourcePath == "" {
		return nil, errors.New("source path cannot be empty")
	}
	if tenantID == "" {
		return nil, errors.New("tenant ID cannot be empty")
	}
	if targetTable == "" {
		return nil, errors.New("target table cannot be empty")
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	now := time.Now()
	return &MigrationSession{
		id:          uuid.New(),
		sourcePath:  sourcePath,
		tenantID:    tenantID,
		targetTable: targetTable,
		batchSize:   batchSize,
		status:      valueobject.SessionStatusPending,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ID returns the session ID.
func (s *MigrationSession) ID() uuid.UUID { return s.id }

// SourcePath returns the source store path.
func (s *MigrationSession) SourcePath() string { return s.sourcePath }

// TenantID returns the tenant identifier.
func (s *MigrationSession) TenantID() string { return s.tenantID }

// TargetTable returns the tenant-scoped target table name.
func (s *MigrationSession) TargetTable() string { return s.targetTable }

// BatchSize returns the configured batch size.
func (s *MigrationSession) BatchSize() int { return s.batchSize }

// Status returns the current session status.
func (s *MigrationSession) Status() valueobject.SessionStatus { return s.status }

// CommittedOffset returns the offset of the last fully committed batch.
func (s *MigrationSession) CommittedOffset() int64 { return s.committedOffset }

// RowsMigrated returns the number of rows upserted so far.
func (s *MigrationSession) RowsMigrated() int64 { return s.rowsMigrated }

// RowsSkipped returns the number of rows excluded by policy.
func (s *MigrationSession) RowsSkipped() int64 { return s.rowsSkipped }

// Warnings returns non-fatal warnings recorded during migration.
func (s *MigrationSession) Warnings() []string { return s.warnings }

// StartedAt returns when the session started running, if it has.
func (s *MigrationSession) StartedAt() *time.Time { return s.startedAt }

// CompletedAt returns when the session reached a terminal state, if it has.
func (s *MigrationSession) CompletedAt() *time.Time { return s.completedAt }

// ErrorMessage returns the failure message, if the session failed.
func (s *MigrationSession) ErrorMessage() *string { return s.errorMessage }

// Start marks the session as running. Resuming a failed session is allowed;
// the committed offset is preserved.
func (s *MigrationSession) Start() error {
	if err := s.transition(valueobject.SessionStatusRunning); err != nil {
		return err
	}
	now := time.Now()
	s.startedAt = &now
	return nil
}

// RecordBatch advances progress after one batch transaction has committed.
// rows counts upserted rows, skipped counts rows excluded by policy.
func (s *MigrationSession) RecordBatch(newOffset, rows, skipped int64) error {
	if s.status != valueobject.SessionStatusRunning {
		return fmt.Errorf("cannot record batch in status %s", s.status)
	}
	if newOffset < s.committedOffset {
		return fmt.Errorf("offset cannot move backwards: %d < %d", newOffset, s.committedOffset)
	}
	s.committedOffset = newOffset
	s.rowsMigrated += rows
	s.rowsSkipped += skipped
	s.updatedAt = time.Now()
	return nil
}

// ResumeFrom sets the committed offset for a session resuming after an
// interruption. Only valid before the session starts running.
func (s *MigrationSession) ResumeFrom(offset int64) error {
	if s.status != valueobject.SessionStatusPending {
		return fmt.Errorf("cannot set resume offset in status %s", s.status)
	}
	if offset < 0 {
		return errors.New("resume offset cannot be negative")
	}
	s.committedOffset = offset
	return nil
}

// AddWarning records a non-fatal warning, such as an unparsable date value.
func (s *MigrationSession) AddWarning(msg string) {
	s.warnings = append(s.warnings, msg)
	s.updatedAt = time.Now()
}

// Complete marks the session as successfully completed.
func (s *MigrationSession) Complete() error {
	if err := s.transition(valueobject.SessionStatusCompleted); err != nil {
		return err
	}
	now := time.Now()
	s.completedAt = &now
	return nil
}

// Fail marks the session as failed with the given message.
func (s *MigrationSession) Fail(msg string) error {
	if err := s.transition(valueobject.SessionStatusFailed); err != nil {
		return err
	}
	now := time.Now()
	s.completedAt = &now
	s.errorMessage = &msg
	return nil
}

// MarkRolledBack records that the session's effects were undone.
func (s *MigrationSession) MarkRolledBack() error {
	return s.transition(valueobject.SessionStatusRolledBack)
}

func (s *MigrationSession) transition(target valueobject.SessionStatus) error {
	if !s.status.CanTransitionTo(target) {
		return fmt.Errorf("invalid session transition from %s to %s", s.status, target)
	}
	s.status = target
	s.updatedAt = time.Now()
	return nil
}
