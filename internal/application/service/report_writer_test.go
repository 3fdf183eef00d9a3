package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tenantmigrate/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReportWriter(t *testing.T) {
	t.Run("rejects empty directory", func(t *testing.T) {
		_, err := NewReportWriter("")
		require.Error(t, err)
	})

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "reports")
		_, err := NewReportWriter(dir)
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestReportWriter_Write(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewReportWriter(dir)
	require.NoError(t, err)

	report := &entity.MigrationReport{
		SessionID:   "4d7e2a10-0000-0000-0000-000000000000",
		TenantID:    "acme",
		SourcePath:  "/data/assets.db",
		TargetTable: testTable,
		Stats:       &entity.MigrationStats{RowsMigrated: 42, BatchesCommitted: 5},
		Success:     true,
		GeneratedAt: time.Now(),
		ToolVersion: "dev",
	}

	path, err := writer.Write(context.Background(), "migration_report", report)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	name := filepath.Base(path)
	assert.True(t, strings.HasPrefix(name, "migration_report_"), "name %s carries the kind prefix", name)
	assert.True(t, strings.HasSuffix(name, ".json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded entity.MigrationReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "acme", decoded.TenantID)
	assert.EqualValues(t, 42, decoded.Stats.RowsMigrated)
	assert.True(t, decoded.Success)
}

func TestReportWriter_Write_UnmarshalableReport(t *testing.T) {
	writer, err := NewReportWriter(t.TempDir())
	require.NoError(t, err)

	_, err = writer.Write(context.Background(), "migration_report", map[string]any{"bad": func() {}})
	require.Error(t, err)
}
