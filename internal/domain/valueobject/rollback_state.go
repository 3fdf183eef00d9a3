package valueobject

import "fmt"

// RollbackState represents a state of the rollback state machine.
type RollbackState string

// Rollback state machine states, in execution order.
const (
	RollbackStateInit           RollbackState = "INIT"
	RollbackStateVerifyBackup   RollbackState = "VERIFY_BACKUP"
	RollbackStateCleanTarget    RollbackState = "CLEAN_TARGET"
	RollbackStateRestoreSource  RollbackState = "RESTORE_SOURCE"
	RollbackStateVerifyRollback RollbackState = "VERIFY_ROLLBACK"
	RollbackStateSuccess        RollbackState = "SUCCESS"
	RollbackStateFailed         RollbackState = "FAILED"
)

// executionOrder lists the non-terminal states in the order the orchestrator
// runs them.
var executionOrder = []RollbackState{
	RollbackStateInit,
	RollbackStateVerifyBackup,
	RollbackStateCleanTarget,
	RollbackStateRestoreSource,
	RollbackStateVerifyRollback,
}

// validRollbackStates contains all valid rollback states.
var validRollbackStates = map[RollbackState]bool{
	RollbackStateInit:           true,
	RollbackStateVerifyBackup:   true,
	RollbackStateCleanTarget:    true,
	RollbackStateRestoreSource:  true,
	RollbackStateVerifyRollback: true,
	RollbackStateSuccess:        true,
	RollbackStateFailed:         true,
}

// NewRollbackState creates a new RollbackState with validation.
func NewRollbackState(state string) (RollbackState, error) {
	s := RollbackState(state)
	if !validRollbackStates[s] {
		return "", fmt.Errorf("invalid rollback state: %s", state)
	}
	return s, nil
}

// String returns the string representation of the state.
func (s RollbackState) String() string {
	return string(s)
}

// IsTerminal returns true if this state ends the state machine.
func (s RollbackState) IsTerminal() bool {
	return s == RollbackStateSuccess || s == RollbackStateFailed
}

// IsCritical returns true if a failure in this state always fails the whole
// rollback, regardless of emergency mode. Cleaning the target is destructive,
// and a rollback that dropped the target without restoring the source must
// never report success.
func (s RollbackState) IsCritical() bool {
	return s == RollbackStateCleanTarget || s == RollbackStateRestoreSource
}

// Next returns the state that follows s in execution order. The final
// non-terminal state advances to SUCCESS.
func (s RollbackState) Next() (RollbackState, error) {
	for i, state := range executionOrder {
		if state != s {
			continue
		}
		if i == len(executionOrder)-1 {
			return RollbackStateSuccess, nil
		}
		return executionOrder[i+1], nil
	}
	return "", fmt.Errorf("state %s has no successor", s)
}

// CanTransitionTo returns true if the state can transition to the target state.
func (s RollbackState) CanTransitionTo(target RollbackState) bool {
	if s.IsTerminal() {
		return false
	}
	if target == RollbackStateFailed {
		return true
	}
	next, err := s.Next()
	if err != nil {
		return false
	}
	return target == next
}
