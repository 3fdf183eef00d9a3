package entity

import (
	"fmt"
	"time"

	"tenantmigrate/internal/domain/valueobject"

	"github.com/google/uuid"
)

// RollbackStepResult records the outcome of one state-machine step. Outcomes
// are recorded regardless of whether later steps run.
type RollbackStepResult struct {
	Step       valueobject.RollbackState `json:"step"`
	Success    bool                      `json:"success"`
	Detail     string                    `json:"detail,omitempty"`
	Error      string                    `json:"error,omitempty"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
}

// RollbackPlan tracks the state-machine progress of one rollback attempt.
type RollbackPlan struct {
	id            uuid.UUID
	tenantID      string
	targetTable   string
	backupID      string
	state         valueobject.RollbackState
	emergencyMode bool
	preserve      bool
	steps         []RollbackStepResult
	createdAt     time.Time
	updatedAt     time.Time
}

// NewRollbackPlan creates a plan in the INIT state.
func NewRollbackPlan(tenantID, targetTable, backupID string, emergencyMode, preserve bool) (*RollbackPlan, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID cannot be empty")
	}
	if targetTable == "" {
		return nil, fmt.Errorf("target table cannot be empty")
	}
	if backupID == "" {
		return nil, fmt.Errorf("backup ID cannot be empty")
	}

	now := time.Now()
	return &RollbackPlan{
		id:            uuid.New(),
		tenantID:      tenantID,
		targetTable:   targetTable,
		backupID:      backupID,
		state:         valueobject.RollbackStateInit,
		emergencyMode: emergencyMode,
		preserve:      preserve,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// ID returns the plan ID.
func (p *RollbackPlan) ID() uuid.UUID { return p.id }

// TenantID returns the tenant whose data is being rolled back.
func (p *RollbackPlan) TenantID() string { return p.tenantID }

// TargetTable returns the tenant-scoped table to clean.
func (p *RollbackPlan) TargetTable() string { return p.targetTable }

// BackupID returns the backup artifact the plan restores from.
func (p *RollbackPlan) BackupID() string { return p.backupID }

// State returns the current state-machine state.
func (p *RollbackPlan) State() valueobject.RollbackState { return p.state }

// EmergencyMode reports whether non-critical step failures are tolerated.
func (p *RollbackPlan) EmergencyMode() bool { return p.emergencyMode }

// Preserve reports whether the target table is copied aside before dropping.
func (p *RollbackPlan) Preserve() bool { return p.preserve }

// Steps returns the recorded step results in execution order.
func (p *RollbackPlan) Steps() []RollbackStepResult { return p.steps }

// StepsFailed returns the names of steps that failed.
func (p *RollbackPlan) StepsFailed() []string {
	var failed []string
	for _, s := range p.steps {
		if !s.Success {
			failed = append(failed, s.Step.String())
		}
	}
	return failed
}

// RecordStep appends a step result and advances the state machine. A failed
// critical step, or any failure outside emergency mode, moves the plan to
// FAILED; otherwise the plan advances to the next step.
func (p *RollbackPlan) RecordStep(result RollbackStepResult) error {
	if p.state.IsTerminal() {
		return fmt.Errorf("plan is already in terminal state %s", p.state)
	}
	if result.Step != p.state {
		return fmt.Errorf("step %s recorded while plan is in state %s", result.Step, p.state)
	}

	p.steps = append(p.steps, result)
	p.updatedAt = time.Now()

	if !result.Success && (result.Step.IsCritical() || !p.emergencyMode) {
		p.state = valueobject.RollbackStateFailed
		return nil
	}

	next, err := p.state.Next()
	if err != nil {
		return err
	}
	p.state = next
	return nil
}

// Abort moves the plan directly to FAILED, recording the aborting step.
func (p *RollbackPlan) Abort(result RollbackStepResult) error {
	if p.state.IsTerminal() {
		return fmt.Errorf("plan is already in terminal state %s", p.state)
	}
	p.steps = append(p.steps, result)
	p.state = valueobject.RollbackStateFailed
	p.updatedAt = time.Now()
	return nil
}

// Succeeded reports whether the plan reached SUCCESS.
func (p *RollbackPlan) Succeeded() bool {
	return p.state == valueobject.RollbackStateSuccess
}
