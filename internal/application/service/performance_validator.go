package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/domain/entity"
	"tenantmigrate/internal/port/outbound"

	"github.com/jackc/pgx/v5"
)

// timedRuns is the number of timed executions per benchmark query, after one
// discarded warm-up run.
const timedRuns = 3

// DefaultLatencyThreshold is the per-query average latency bound. It is a
// configurable default, not a negotiated SLA.
const DefaultLatencyThreshold = 50 * time.Millisecond

// benchmarkQuery is one entry in the fixed representative battery.
type benchmarkQuery struct {
	name  string
	build func(table string) string
	args  func(sampleAssetID string) []any
}

// benchmarkBattery covers the access patterns a tenant workload exercises:
// point lookup by primary key, filtered scan, ordered scan, aggregation.
var benchmarkBattery = []benchmarkQuery{
	{
		name: "point_lookup",
		build: func(table string) string {
			return fmt.Sprintf("SELECT * FROM %s WHERE asset_id = $1", pgx.Identifier{table}.Sanitize())
		},
		args: func(sampleAssetID string) []any { return []any{sampleAssetID} },
	},
	{
		name: "filtered_scan",
		build: func(table string) string {
			return fmt.Sprintf("SELECT * FROM %s WHERE is_enabled = true", pgx.Identifier{table}.Sanitize())
		},
	},
	{
		name: "ordered_scan",
		build: func(table string) string {
			return fmt.Sprintf("SELECT * FROM %s ORDER BY asset_id LIMIT 100", pgx.Identifier{table}.Sanitize())
		},
	},
	{
		name: "aggregation",
		build: func(table string) string {
			return fmt.Sprintf("SELECT category, COUNT(*) FROM %s GROUP BY category", pgx.Identifier{table}.Sanitize())
		},
	},
}

// PerformanceValidator benchmarks representative queries against the target
// and confirms expected indexes exist and are actually used.
type PerformanceValidator struct {
	target    outbound.TargetStore
	threshold time.Duration
}

// NewPerformanceValidator creates a PerformanceValidator with the given
// per-query latency threshold.
func NewPerformanceValidator(target outbound.TargetStore, threshold time.Duration) *PerformanceValidator {
	if threshold <= 0 {
		threshold = DefaultLatencyThreshold
	}
	return &PerformanceValidator{target: target, threshold: threshold}
}

// Validate runs the benchmark battery. Results are non-fatal by default;
// strict mode promotes latency failures to fatal.
func (v *PerformanceValidator) Validate(ctx context.Context, table string, strict bool) []entity.CheckResult {
	sampleID := v.sampleAssetID(ctx, table)

	var results []entity.CheckResult
	for _, bench := range benchmarkBattery {
		results = append(results, v.runBenchmark(ctx, table, bench, sampleID, strict))
	}
	return results
}

func (v *PerformanceValidator) runBenchmark(
	ctx context.Context,
	table string,
	bench benchmarkQuery,
	sampleID string,
	strict bool,
) entity.CheckResult {
	start := time.Now()
	result := entity.CheckResult{
		Name:  entity.CheckQueryLatency + ":" + bench.name,
		Fatal: strict,
	}

	var args []any
	if bench.args != nil {
		args = bench.args(sampleID)
	}

	timing, err := v.target.TimeQuery(ctx, timedRuns, bench.build(table), args...)
	if err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	result.Metrics = map[string]any{
		"min_ms": float64(timing.Min) / float64(time.Millisecond),
		"avg_ms": float64(timing.Avg) / float64(time.Millisecond),
		"max_ms": float64(timing.Max) / float64(time.Millisecond),
	}

	if timing.Avg > v.threshold {
		result.Detail = fmt.Sprintf("average %.2fms exceeds threshold %.0fms",
			float64(timing.Avg)/float64(time.Millisecond),
			float64(v.threshold)/float64(time.Millisecond))
		result.Duration = time.Since(start)
		slogger.Warn(ctx, "Benchmark query over latency threshold", slogger.Fields2(
			"query", bench.name,
			"avg_ms", float64(timing.Avg)/float64(time.Millisecond),
		))
		return result
	}

	result.Passed = true
	result.Duration = time.Since(start)
	return result
}

// CheckIndexes confirms each named index exists and that the planner
// actually uses an index for the filtered-scan benchmark. Existence alone is
// not sufficient evidence of effectiveness.
func (v *PerformanceValidator) CheckIndexes(ctx context.Context, table string, expected []string) entity.CheckResult {
	start := time.Now()
	result := entity.CheckResult{Name: entity.CheckIndexUsage, Fatal: true}

	existing, err := v.target.ListIndexes(ctx, table)
	if err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}

	var missing []string
	for _, name := range expected {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		result.Detail = "missing indexes: " + strings.Join(missing, ", ")
		result.Duration = time.Since(start)
		return result
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE is_enabled = true", pgx.Identifier{table}.Sanitize())
	scanType, err := v.target.ExplainScanType(ctx, query)
	if err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	result.Metrics = map[string]any{
		"indexes":   existing,
		"scan_type": scanType,
	}
	if !strings.Contains(scanType, "Index") && !strings.Contains(scanType, "Bitmap") {
		result.Detail = fmt.Sprintf("planner chose %s instead of an index scan", scanType)
		result.Duration = time.Since(start)
		return result
	}

	result.Passed = true
	result.Duration = time.Since(start)
	return result
}

// sampleAssetID fetches a real primary key for the point-lookup benchmark.
// An empty table benchmarks against an empty string, which still exercises
// the index path.
func (v *PerformanceValidator) sampleAssetID(ctx context.Context, table string) string {
	records, err := v.target.ReadBatch(ctx, table, 0, 1)
	if err != nil || len(records) == 0 {
		return ""
	}
	return records[0].AssetID
}
