package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tenantmigrate/internal/application/common/slogger"
)

// ReportWriter persists one timestamped JSON report per run. Reports are the
// only durable record of a run's outcome besides log output.
type ReportWriter struct {
	dir string
}

// NewReportWriter creates a ReportWriter targeting dir.
func NewReportWriter(dir string) (*ReportWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("report output directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory %s: %w", dir, err)
	}
	return &ReportWriter{dir: dir}, nil
}

// Write persists a report under a timestamped name with the given kind
// prefix (migration_report, validation_report, rollback_report) and returns
// the written path.
func (w *ReportWriter) Write(ctx context.Context, kind string, report any) (string, error) {
	name := fmt.Sprintf("%s_%s.json", kind, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(w.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", kind, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", kind, err)
	}

	slogger.Info(ctx, "Report written", slogger.Field("path", path))
	return path, nil
}
