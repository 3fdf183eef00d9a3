package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Migration lifecycle event subjects.
const (
	EventMigrationStarted   = "migration.started"
	EventMigrationCompleted = "migration.completed"
	EventMigrationFailed    = "migration.failed"
	EventRollbackCompleted  = "rollback.completed"
)

// MigrationEvent is the payload published for migration lifecycle events.
type MigrationEvent struct {
	SessionID    uuid.UUID `json:"session_id"`
	TenantID     string    `json:"tenant_id"`
	Subject      string    `json:"subject"`
	RowsMigrated int64     `json:"rows_migrated,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	MessageID    string    `json:"message_id"`
}

// EventPublisher publishes migration lifecycle events to interested
// collaborators. Publishing is best-effort: a publish failure never fails the
// migration itself.
type EventPublisher interface {
	Publish(ctx context.Context, event MigrationEvent) error
	Close() error
}
