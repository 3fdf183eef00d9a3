package valueobject

import "fmt"

// SessionStatus represents the current status of a migration session.
type SessionStatus string

// Session status constants.
const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusRunning    SessionStatus = "running"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusRolledBack SessionStatus = "rolled_back"
)

// validSessionStatuses contains all valid session statuses.
var validSessionStatuses = map[SessionStatus]bool{
	SessionStatusPending:    true,
	SessionStatusRunning:    true,
	SessionStatusCompleted:  true,
	SessionStatusFailed:     true,
	SessionStatusRolledBack: true,
}

// NewSessionStatus creates a new SessionStatus with validation.
func NewSessionStatus(status string) (SessionStatus, error) {
	s := SessionStatus(status)
	if !validSessionStatuses[s] {
		return "", fmt.Errorf("invalid session status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s SessionStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusRolledBack
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s SessionStatus) CanTransitionTo(target SessionStatus) bool {
	transitions := map[SessionStatus][]SessionStatus{
		SessionStatusPending: {
			SessionStatusRunning,
			SessionStatusFailed,
		},
		SessionStatusRunning: {
			SessionStatusCompleted,
			SessionStatusFailed,
		},
		// A failed session may still be resumed or rolled back.
		SessionStatusFailed: {
			SessionStatusRunning,
			SessionStatusRolledBack,
		},
		SessionStatusCompleted:  {},
		SessionStatusRolledBack: {},
	}

	for _, validTarget := range transitions[s] {
		if target == validTarget {
			return true
		}
	}
	return false
}
