package entity

import (
	"time"
)

// Validation check names, stable across reports.
const (
	CheckRecordCount      = "record_count"
	CheckSchemaCompat     = "schema_compatibility"
	CheckContentIntegrity = "content_integrity"
	CheckPrimaryKey       = "primary_key_constraints"
	CheckDataTypes        = "data_types"
	CheckFullChecksum     = "full_checksum"
	CheckQueryLatency     = "query_latency"
	CheckIndexUsage       = "index_usage"
)

// CheckResult is the outcome of a single validation check. Checks run
// independently; one failure does not block the others.
type CheckResult struct {
	Name     string         `json:"name"`
	Passed   bool           `json:"passed"`
	Fatal    bool           `json:"fatal"`
	Detail   string         `json:"detail,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metrics  map[string]any `json:"metrics,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
}

// ValidationReport aggregates the result of every integrity and performance
// check for one session. It is immutable once written.
type ValidationReport struct {
	SessionID   string        `json:"session_id"`
	TenantID    string        `json:"tenant_id"`
	TargetTable string        `json:"target_table"`
	Checks      []CheckResult `json:"checks"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// Passed reports whether every fatal check passed. Non-fatal checks (the
// performance battery outside strict mode) do not fail the report.
func (r *ValidationReport) Passed() bool {
	for _, c := range r.Checks {
		if c.Fatal && !c.Passed {
			return false
		}
	}
	return true
}

// FailedChecks returns the names of all checks that did not pass.
func (r *ValidationReport) FailedChecks() []string {
	var failed []string
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	return failed
}
