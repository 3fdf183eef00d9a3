// Package domain provides domain-specific error definitions and utilities.
package domain

import (
	"errors"
	"fmt"
)

// Source-related errors. These are fatal and never retried.
var (
	ErrSourceNotFound = errors.New("source store not found")
	ErrSourceCorrupt  = errors.New("source store failed integrity check")
	ErrSchemaMissing  = errors.New("required table or column set is absent from source")
)

// Structural errors. Fatal, never retried.
var (
	ErrSchemaIncompatible = errors.New("source and target schemas are incompatible")
	ErrIntegrityViolation = errors.New("content mismatch between source and target")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
)

// Backup-related errors. Fatal; block any destructive step.
var (
	ErrBackupVerificationFailed = errors.New("backup verification failed")
	ErrBackupNotFound           = errors.New("backup artifact not found")
	ErrBackupInUse              = errors.New("backup artifact referenced by an in-flight rollback")
)

// Concurrency errors.
var (
	ErrTenantLocked = errors.New("another migration session holds the tenant lock")
)

// General domain errors.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConnectivityError wraps a transient database or network failure. It is the
// only error class the retry executor will re-attempt.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity failure during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// NewConnectivityError wraps err as a transient connectivity failure.
func NewConnectivityError(op string, err error) *ConnectivityError {
	return &ConnectivityError{Op: op, Err: err}
}

// IsConnectivityError reports whether err is classified as transient.
func IsConnectivityError(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// PartialMigrationError reports an unrecoverable failure mid-run. The caller
// must either resume from LastCommittedOffset or invoke a rollback; the error
// carries enough state for both.
type PartialMigrationError struct {
	SessionID           string
	LastCommittedOffset int64
	RowsMigrated        int64
	Err                 error
}

func (e *PartialMigrationError) Error() string {
	return fmt.Sprintf("migration interrupted at offset %d (%d rows committed): %v",
		e.LastCommittedOffset, e.RowsMigrated, e.Err)
}

func (e *PartialMigrationError) Unwrap() error { return e.Err }

// RollbackStepError attaches the failed step name to a rollback failure so the
// plan can record exactly where the state machine stopped.
type RollbackStepError struct {
	Step     string
	Critical bool
	Err      error
}

func (e *RollbackStepError) Error() string {
	return fmt.Sprintf("rollback step %s failed: %v", e.Step, e.Err)
}

func (e *RollbackStepError) Unwrap() error { return e.Err }
