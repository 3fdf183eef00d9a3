package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"tenantmigrate/internal/application/common/metrics"
	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/domain/entity"
	"tenantmigrate/internal/port/outbound"

	"golang.org/x/sync/errgroup"
)

// typeCompatibility is the explicit source-to-target type table. A source
// column whose target type is not listed here fails the schema check.
var typeCompatibility = map[string][]string{
	"TEXT":      {"text", "character varying", "varchar"},
	"VARCHAR":   {"text", "character varying", "varchar"},
	"INTEGER":   {"integer", "bigint"},
	"BIGINT":    {"integer", "bigint"},
	"BOOLEAN":   {"boolean"},
	"REAL":      {"real", "double precision", "numeric"},
	"TIMESTAMP": {"timestamp with time zone", "timestamp without time zone"},
	"DATETIME":  {"timestamp with time zone", "timestamp without time zone"},
}

// sourceTimestampColumns are source TEXT columns that hold timestamps and map
// to timestamptz on the target.
var sourceTimestampColumns = map[string]bool{
	"start_date": true,
	"end_date":   true,
	"created_at": true,
	"updated_at": true,
}

// sourceBooleanColumns are source INTEGER columns that hold 0/1 booleans and
// map to boolean on the target.
var sourceBooleanColumns = map[string]bool{
	"is_enabled": true,
}

// IntegrityValidatorOptions configures a validation pass.
type IntegrityValidatorOptions struct {
	SampleSize   int
	DeepChecksum bool
}

// IntegrityValidator compares source and target after transfer. Checks run
// independently, in order; a failure in one does not block the others, and
// no check performs auto-repair.
type IntegrityValidator struct {
	source  outbound.SourceStore
	target  outbound.TargetStore
	policy  *ExclusionPolicy
	metrics *metrics.MigrationMetrics
}

// NewIntegrityValidator creates an IntegrityValidator. policy and metrics may
// be nil.
func NewIntegrityValidator(
	source outbound.SourceStore,
	target outbound.TargetStore,
	policy *ExclusionPolicy,
	migrationMetrics *metrics.MigrationMetrics,
) *IntegrityValidator {
	if policy == nil {
		policy = &ExclusionPolicy{}
		policy.index()
	}
	return &IntegrityValidator{
		source:  source,
		target:  target,
		policy:  policy,
		metrics: migrationMetrics,
	}
}

// Validate runs the full check battery against the session's target table
// and returns every result, passed or failed.
func (v *IntegrityValidator) Validate(
	ctx context.Context,
	session *entity.MigrationSession,
	opts IntegrityValidatorOptions,
) *entity.ValidationReport {
	if opts.SampleSize <= 0 {
		opts.SampleSize = 1000
	}
	if opts.SampleSize > 10000 {
		opts.SampleSize = 10000
	}

	report := &entity.ValidationReport{
		SessionID:   session.ID().String(),
		TenantID:    session.TenantID(),
		TargetTable: session.TargetTable(),
		StartedAt:   time.Now(),
	}

	checks := []func(ctx context.Context, table string, opts IntegrityValidatorOptions) entity.CheckResult{
		v.checkRecordCount,
		v.checkSchemaCompatibility,
		v.checkContentIntegrity,
		v.checkPrimaryKeys,
		v.checkDataTypes,
	}
	if opts.DeepChecksum {
		checks = append(checks, v.checkFullChecksum)
	}

	for _, check := range checks {
		result := check(ctx, session.TargetTable(), opts)
		report.Checks = append(report.Checks, result)
		if !result.Passed && v.metrics != nil {
			v.metrics.RecordCheckFailure(ctx, result.Name)
		}
	}

	report.FinishedAt = time.Now()
	slogger.Info(ctx, "Integrity validation finished", slogger.Fields2(
		"passed", report.Passed(),
		"failed_checks", report.FailedChecks(),
	))
	return report
}

func (v *IntegrityValidator) checkRecordCount(ctx context.Context, table string, _ IntegrityValidatorOptions) entity.CheckResult {
	start := time.Now()
	result := entity.CheckResult{Name: entity.CheckRecordCount, Fatal: true}

	sourceCount, err := v.source.Count(ctx)
	if err != nil {
		return failCheck(result, start, err)
	}
	targetCount, err := v.target.Count(ctx, table)
	if err != nil {
		return failCheck(result, start, err)
	}

	excluded, err := v.excludedInSource(ctx)
	if err != nil {
		return failCheck(result, start, err)
	}

	expected := sourceCount - excluded
	delta := targetCount - expected
	result.Metrics = map[string]any{
		"source_count": sourceCount,
		"target_count": targetCount,
		"excluded":     excluded,
		"delta":        delta,
	}
	if delta != 0 {
		result.Detail = fmt.Sprintf("target has %d rows, expected %d (delta %+d)", targetCount, expected, delta)
		result.Duration = time.Since(start)
		return result
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("%d rows on both sides", targetCount)
	result.Duration = time.Since(start)
	return result
}

// excludedInSource counts the policy-excluded rows actually present in the
// source. An excluded ID that never existed in the source must not shift
// the expected target count.
func (v *IntegrityValidator) excludedInSource(ctx context.Context) (int64, error) {
	if v.policy.Count() == 0 {
		return 0, nil
	}

	const scanBatch = int64(1000)
	var excluded int64
	for offset := int64(0); ; offset += scanBatch {
		raw, err := v.source.ReadBatch(ctx, offset, scanBatch)
		if err != nil {
			return 0, err
		}
		for _, row := range raw {
			if v.policy.Excluded(row.AssetID) {
				excluded++
			}
		}
		if int64(len(raw)) < scanBatch {
			return excluded, nil
		}
	}
}

func (v *IntegrityValidator) checkSchemaCompatibility(ctx context.Context, table string, _ IntegrityValidatorOptions) entity.CheckResult {
	start := time.Now()
	result := entity.CheckResult{Name: entity.CheckSchemaCompat, Fatal: true}

	sourceColumns, err := v.source.Schema(ctx)
	if err != nil {
		return failCheck(result, start, err)
	}
	targetColumns, err := v.target.Schema(ctx, table)
	if err != nil {
		return failCheck(result, start, err)
	}

	targetTypes := make(map[string]string, len(targetColumns))
	for _, c := range targetColumns {
		targetTypes[c.Name] = strings.ToLower(c.DataType)
	}

	var problems []string
	for _, sc := range sourceColumns {
		targetType, present := targetTypes[sc.Name]
		if !present {
			// A source column absent from the target is fatal; extra
			// target-only columns are allowed.
			problems = append(problems, fmt.Sprintf("column %s missing from target", sc.Name))
			continue
		}
		if !typesCompatible(sc.Name, sc.Type, targetType) {
			problems = append(problems, fmt.Sprintf(
				"column %s: source type %s incompatible with target type %s", sc.Name, sc.Type, targetType))
		}
	}

	result.Metrics = map[string]any{
		"source_columns": len(sourceColumns),
		"target_columns": len(targetColumns),
	}
	if len(problems) > 0 {
		result.Detail = strings.Join(problems, "; ")
		result.Duration = time.Since(start)
		return result
	}

	result.Passed = true
	result.Duration = time.Since(start)
	return result
}

// typesCompatible consults the explicit compatibility table. Source timestamp
// columns are stored as TEXT in the source, so they get the TIMESTAMP row;
// boolean columns stored as INTEGER get the BOOLEAN row.
func typesCompatible(name, sourceType, targetType string) bool {
	normalized := strings.ToUpper(sourceType)
	if i := strings.Index(normalized, "("); i > 0 {
		normalized = normalized[:i]
	}
	if sourceTimestampColumns[name] {
		normalized = "TIMESTAMP"
	}
	if sourceBooleanColumns[name] {
		normalized = "BOOLEAN"
	}

	for _, accepted := range typeCompatibility[normalized] {
		if targetType == accepted {
			return true
		}
	}
	return false
}

func (v *IntegrityValidator) checkContentIntegrity(ctx context.Context, table string, opts IntegrityValidatorOptions) entity.CheckResult {
	start := time.Now()
	result := entity.CheckResult{Name: entity.CheckContentIntegrity, Fatal: true}

	sourceRecords, err := v.sampleSource(ctx, int64(opts.SampleSize))
	if err != nil {
		return failCheck(result, start, err)
	}
	targetRecords, err := v.target.ReadBatch(ctx, table, 0, int64(opts.SampleSize))
	if err != nil {
		return failCheck(result, start, err)
	}

	targetByID := make(map[string]entity.AssetRecord, len(targetRecords))
	for _, r := range targetRecords {
		targetByID[r.AssetID] = r
	}

	var mismatches, missing int
	var firstDiff string
	for _, src := range sourceRecords {
		tgt, present := targetByID[src.AssetID]
		if !present {
			missing++
			if firstDiff == "" {
				firstDiff = fmt.Sprintf("asset %s missing from target", src.AssetID)
			}
			continue
		}
		if !src.Equal(tgt) {
			mismatches++
			if firstDiff == "" {
				firstDiff = fmt.Sprintf("asset %s differs between stores", src.AssetID)
			}
		}
	}

	sampled := len(sourceRecords)
	score := 100.0
	if sampled > 0 {
		score = float64(sampled-mismatches-missing) / float64(sampled) * 100
	}
	result.Metrics = map[string]any{
		"sampled":         sampled,
		"mismatches":      mismatches,
		"missing":         missing,
		"integrity_score": score,
	}

	// The score is diagnostic only; the check passes at exactly 100%.
	if mismatches > 0 || missing > 0 {
		result.Detail = firstDiff
		result.Duration = time.Since(start)
		return result
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("%d records compared field-by-field", sampled)
	result.Duration = time.Since(start)
	return result
}

func (v *IntegrityValidator) checkPrimaryKeys(ctx context.Context, table string, _ IntegrityValidatorOptions) entity.CheckResult {
	start := time.Now()
	result := entity.CheckResult{Name: entity.CheckPrimaryKey, Fatal: true}

	sourceStats, err := v.source.PrimaryKeyStats(ctx)
	if err != nil {
		return failCheck(result, start, err)
	}
	targetStats, err := v.target.PrimaryKeyStats(ctx, table)
	if err != nil {
		return failCheck(result, start, err)
	}

	result.Metrics = map[string]any{
		"source_null_keys":      sourceStats.NullKeys,
		"source_duplicate_keys": sourceStats.DuplicateKeys,
		"target_null_keys":      targetStats.NullKeys,
		"target_duplicate_keys": targetStats.DuplicateKeys,
	}

	total := sourceStats.NullKeys + sourceStats.DuplicateKeys + targetStats.NullKeys + targetStats.DuplicateKeys
	if total != 0 {
		result.Detail = "null or duplicate primary keys present"
		result.Duration = time.Since(start)
		return result
	}

	result.Passed = true
	result.Duration = time.Since(start)
	return result
}

// checkDataTypes compares converted boolean and timestamp values over the
// sample. It catches conversion-rule bugs the content check might miss due
// to equality coercion.
func (v *IntegrityValidator) checkDataTypes(ctx context.Context, table string, opts IntegrityValidatorOptions) entity.CheckResult {
	start := time.Now()
	result := entity.CheckResult{Name: entity.CheckDataTypes, Fatal: true}

	raw, err := v.source.ReadBatch(ctx, 0, int64(opts.SampleSize))
	if err != nil {
		return failCheck(result, start, err)
	}
	targetRecords, err := v.target.ReadBatch(ctx, table, 0, int64(opts.SampleSize))
	if err != nil {
		return failCheck(result, start, err)
	}

	targetByID := make(map[string]entity.AssetRecord, len(targetRecords))
	for _, r := range targetRecords {
		targetByID[r.AssetID] = r
	}

	var problems []string
	for _, row := range raw {
		if v.policy.Excluded(row.AssetID) {
			continue
		}
		tgt, present := targetByID[row.AssetID]
		if !present {
			continue // the content check reports missing records
		}

		if ConvertBool(row.IsEnabled) != tgt.IsEnabled {
			problems = append(problems, fmt.Sprintf("asset %s: is_enabled %d converted incorrectly", row.AssetID, row.IsEnabled))
		}
		if !timestampMatches(row.StartDate, tgt.StartDate) {
			problems = append(problems, fmt.Sprintf("asset %s: start_date %q converted incorrectly", row.AssetID, row.StartDate))
		}
		if !timestampMatches(row.EndDate, tgt.EndDate) {
			problems = append(problems, fmt.Sprintf("asset %s: end_date %q converted incorrectly", row.AssetID, row.EndDate))
		}
	}

	result.Metrics = map[string]any{"sampled": len(raw), "problems": len(problems)}
	if len(problems) > 0 {
		limit := len(problems)
		if limit > 5 {
			limit = 5
		}
		result.Detail = strings.Join(problems[:limit], "; ")
		result.Duration = time.Since(start)
		return result
	}

	result.Passed = true
	result.Duration = time.Since(start)
	return result
}

// timestampMatches compares a raw source timestamp string to the target
// value under the conversion rules. An unparsable source value must be null
// in the target.
func timestampMatches(raw string, target *time.Time) bool {
	parsed, ok := ParseTimestamp(raw)
	if !ok || parsed == nil {
		return target == nil
	}
	return target != nil && parsed.Equal(*target)
}

// checkFullChecksum hashes a canonical serialization of all rows, ordered by
// primary key, on both sides. Equality is conclusive proof of content
// equivalence over the checked columns. Both hashes are computed
// concurrently; the stores see only reads.
func (v *IntegrityValidator) checkFullChecksum(ctx context.Context, table string, opts IntegrityValidatorOptions) entity.CheckResult {
	start := time.Now()
	result := entity.CheckResult{Name: entity.CheckFullChecksum, Fatal: true}

	batchSize := int64(opts.SampleSize)
	var sourceSum, targetSum string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sum, err := v.sourceChecksum(gctx, batchSize)
		sourceSum = sum
		return err
	})
	g.Go(func() error {
		sum, err := v.targetChecksum(gctx, table, batchSize)
		targetSum = sum
		return err
	})
	if err := g.Wait(); err != nil {
		return failCheck(result, start, err)
	}

	result.Metrics = map[string]any{
		"source_checksum": sourceSum,
		"target_checksum": targetSum,
	}
	if sourceSum != targetSum {
		result.Detail = "content checksums differ"
		result.Duration = time.Since(start)
		return result
	}

	result.Passed = true
	result.Duration = time.Since(start)
	return result
}

func (v *IntegrityValidator) sourceChecksum(ctx context.Context, batchSize int64) (string, error) {
	hasher := sha256.New()
	for offset := int64(0); ; offset += batchSize {
		raw, err := v.source.ReadBatch(ctx, offset, batchSize)
		if err != nil {
			return "", err
		}
		if len(raw) == 0 {
			break
		}
		for _, row := range raw {
			if v.policy.Excluded(row.AssetID) {
				continue
			}
			record, _ := ConvertRow(row)
			hashRecord(hasher, record)
		}
		if int64(len(raw)) < batchSize {
			break
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (v *IntegrityValidator) targetChecksum(ctx context.Context, table string, batchSize int64) (string, error) {
	hasher := sha256.New()
	for offset := int64(0); ; offset += batchSize {
		records, err := v.target.ReadBatch(ctx, table, offset, batchSize)
		if err != nil {
			return "", err
		}
		if len(records) == 0 {
			break
		}
		for _, record := range records {
			hashRecord(hasher, record)
		}
		if int64(len(records)) < batchSize {
			break
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// hashRecord feeds one record's canonical serialization into the hash:
// fields in entity.AssetColumns order, separated by '|', timestamps as
// RFC3339 UTC, nulls as "NULL".
func hashRecord(hasher hash.Hash, r entity.AssetRecord) {
	fields := []string{
		r.AssetID,
		r.Name,
		r.Category,
		r.SerialNumber,
		r.Location,
		strconv.FormatInt(r.Quantity, 10),
		strconv.FormatBool(r.IsEnabled),
		strconv.FormatInt(r.PurchasePrice, 10),
		canonicalTime(r.StartDate),
		canonicalTime(r.EndDate),
		r.Notes,
		canonicalTime(r.CreatedAt),
		canonicalTime(r.UpdatedAt),
	}
	hasher.Write([]byte(strings.Join(fields, "|")))
	hasher.Write([]byte{'\n'})
}

func canonicalTime(t *time.Time) string {
	if t == nil {
		return "NULL"
	}
	return t.UTC().Format(time.RFC3339)
}

// sampleSource reads and converts the first n source rows, skipping
// policy-excluded records.
func (v *IntegrityValidator) sampleSource(ctx context.Context, n int64) ([]entity.AssetRecord, error) {
	raw, err := v.source.ReadBatch(ctx, 0, n)
	if err != nil {
		return nil, err
	}
	records := make([]entity.AssetRecord, 0, len(raw))
	for _, row := range raw {
		if v.policy.Excluded(row.AssetID) {
			continue
		}
		record, _ := ConvertRow(row)
		records = append(records, record)
	}
	return records, nil
}

func failCheck(result entity.CheckResult, start time.Time, err error) entity.CheckResult {
	result.Error = err.Error()
	result.Duration = time.Since(start)
	return result
}
