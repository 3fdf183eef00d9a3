package entity

import (
	"time"
)

// MigrationStats summarizes the work performed by one migration run.
type MigrationStats struct {
	RowsMigrated     int64         `json:"rows_migrated"`
	RowsSkipped      int64         `json:"rows_skipped"`
	BatchesCommitted int64         `json:"batches_committed"`
	CommittedOffset  int64         `json:"committed_offset"`
	Warnings         []string      `json:"warnings,omitempty"`
	Duration         time.Duration `json:"duration_ns"`
}

// PhaseResult is the structured outcome of one pipeline phase. Phases never
// raise past their own boundary; callers inspect the result.
type PhaseResult struct {
	Phase      string    `json:"phase"`
	Success    bool      `json:"success"`
	Fatal      bool      `json:"fatal"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// MigrationReport is the durable record of one full pipeline run: inspection,
// backup, transfer, and both validation passes.
type MigrationReport struct {
	SessionID   string            `json:"session_id"`
	TenantID    string            `json:"tenant_id"`
	SourcePath  string            `json:"source_path"`
	TargetTable string            `json:"target_table"`
	DryRun      bool              `json:"dry_run"`
	Phases      []PhaseResult     `json:"phases"`
	Stats       *MigrationStats   `json:"stats,omitempty"`
	BackupID    string            `json:"backup_id,omitempty"`
	Validation  *ValidationReport `json:"validation,omitempty"`
	Success     bool              `json:"success"`
	GeneratedAt time.Time         `json:"generated_at"`
	ToolVersion string            `json:"tool_version"`
}

// RollbackReport is the durable record of one rollback attempt.
type RollbackReport struct {
	PlanID        string               `json:"plan_id"`
	TenantID      string               `json:"tenant_id"`
	TargetTable   string               `json:"target_table"`
	BackupID      string               `json:"backup_id"`
	EmergencyMode bool                 `json:"emergency_mode"`
	FinalState    string               `json:"final_state"`
	Steps         []RollbackStepResult `json:"steps"`
	StepsFailed   []string             `json:"steps_failed,omitempty"`
	GeneratedAt   time.Time            `json:"generated_at"`
	ToolVersion   string               `json:"tool_version"`
}
