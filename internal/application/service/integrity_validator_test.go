package service

import (
	"context"
	"testing"

	"tenantmigrate/internal/domain/entity"
	"tenantmigrate/internal/port/outbound"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// migrateFixture runs a real migration over the fakes so validator tests
// start from a faithfully transferred target.
func migrateFixture(t *testing.T, rows []entity.RawAssetRow, policy *ExclusionPolicy) (*fakeSourceStore, *fakeTargetStore, *entity.MigrationSession) {
	t.Helper()
	source := newFakeSource(rows)
	target := newFakeTarget()

	session := newMigratorSession(t, 10)
	_, err := NewBatchMigrator(source, target, policy, fastRetry(), nil, nil).
		Migrate(context.Background(), session)
	require.NoError(t, err)
	return source, target, session
}

func checkByName(t *testing.T, report *entity.ValidationReport, name string) entity.CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s not in report", name)
	return entity.CheckResult{}
}

func TestIntegrityValidator_CleanMigrationPasses(t *testing.T) {
	source, target, session := migrateFixture(t, makeRawRows(40), nil)

	validator := NewIntegrityValidator(source, target, nil, nil)
	report := validator.Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 100})

	assert.True(t, report.Passed(), "failed checks: %v", report.FailedChecks())
	assert.Len(t, report.Checks, 5)
}

func TestIntegrityValidator_RecordCount(t *testing.T) {
	t.Run("detects missing rows", func(t *testing.T) {
		source, target, session := migrateFixture(t, makeRawRows(20), nil)
		// Drop one row behind the validator's back.
		delete(target.tables[testTable], "A-0005")

		report := NewIntegrityValidator(source, target, nil, nil).
			Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 100})

		count := checkByName(t, report, entity.CheckRecordCount)
		assert.False(t, count.Passed)
		assert.EqualValues(t, -1, count.Metrics["delta"])
		assert.False(t, report.Passed())
	})

	t.Run("policy exclusions adjust the expectation", func(t *testing.T) {
		policy := NewExclusionPolicy("A-0001", "A-0002")
		source, target, session := migrateFixture(t, makeRawRows(20), policy)

		report := NewIntegrityValidator(source, target, policy, nil).
			Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 100})

		count := checkByName(t, report, entity.CheckRecordCount)
		assert.True(t, count.Passed, "detail: %s", count.Detail)
		assert.EqualValues(t, 2, count.Metrics["excluded"])
	})

	t.Run("excluded ids absent from the source do not skew the expectation", func(t *testing.T) {
		policy := NewExclusionPolicy("A-0001", "Z-9999")
		source, target, session := migrateFixture(t, makeRawRows(20), policy)

		report := NewIntegrityValidator(source, target, policy, nil).
			Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 100})

		// Only the excluded ID that exists in the source counts.
		count := checkByName(t, report, entity.CheckRecordCount)
		assert.True(t, count.Passed, "detail: %s", count.Detail)
		assert.EqualValues(t, 1, count.Metrics["excluded"])
	})
}

func TestIntegrityValidator_SchemaCompatibility(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(target *fakeTargetStore)
		passes     bool
		detailPart string
	}{
		{
			name:   "compatible schemas pass",
			mutate: func(*fakeTargetStore) {},
			passes: true,
		},
		{
			name: "extra target column is allowed",
			mutate: func(target *fakeTargetStore) {
				target.schema = append(target.schema, outbound.TargetColumn{Name: "tenant_note", DataType: "text"})
			},
			passes: true,
		},
		{
			name: "source column missing from target is fatal",
			mutate: func(target *fakeTargetStore) {
				trimmed := make([]outbound.TargetColumn, 0, len(target.schema))
				for _, c := range target.schema {
					if c.Name != "notes" {
						trimmed = append(trimmed, c)
					}
				}
				target.schema = trimmed
			},
			passes:     false,
			detailPart: "column notes missing from target",
		},
		{
			name: "incompatible type fails",
			mutate: func(target *fakeTargetStore) {
				for i := range target.schema {
					if target.schema[i].Name == "quantity" {
						target.schema[i].DataType = "text"
					}
				}
			},
			passes:     false,
			detailPart: "column quantity",
		},
		{
			name: "boolean column must be boolean on target",
			mutate: func(target *fakeTargetStore) {
				for i := range target.schema {
					if target.schema[i].Name == "is_enabled" {
						target.schema[i].DataType = "integer"
					}
				}
			},
			passes:     false,
			detailPart: "column is_enabled",
		},
		{
			name: "timestamp column accepts timestamptz",
			mutate: func(target *fakeTargetStore) {
				for i := range target.schema {
					if target.schema[i].Name == "start_date" {
						target.schema[i].DataType = "timestamp without time zone"
					}
				}
			},
			passes: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, target, session := migrateFixture(t, makeRawRows(5), nil)
			tt.mutate(target)

			report := NewIntegrityValidator(source, target, nil, nil).
				Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 100})

			check := checkByName(t, report, entity.CheckSchemaCompat)
			assert.Equal(t, tt.passes, check.Passed, "detail: %s", check.Detail)
			if tt.detailPart != "" {
				assert.Contains(t, check.Detail, tt.detailPart)
			}
		})
	}
}

func TestIntegrityValidator_ContentIntegrity(t *testing.T) {
	t.Run("any mismatch fails regardless of score", func(t *testing.T) {
		source, target, session := migrateFixture(t, makeRawRows(100), nil)

		// Corrupt a single row out of 100: 99% is still a failure.
		row := target.tables[testTable]["A-0042"]
		row.Name = "tampered"
		target.tables[testTable]["A-0042"] = row

		report := NewIntegrityValidator(source, target, nil, nil).
			Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 1000})

		check := checkByName(t, report, entity.CheckContentIntegrity)
		assert.False(t, check.Passed)
		assert.Contains(t, check.Detail, "A-0042")
		assert.InDelta(t, 99.0, check.Metrics["integrity_score"].(float64), 0.01)
	})

	t.Run("reports missing record", func(t *testing.T) {
		source, target, session := migrateFixture(t, makeRawRows(30), nil)
		delete(target.tables[testTable], "A-0010")

		report := NewIntegrityValidator(source, target, nil, nil).
			Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 100})

		check := checkByName(t, report, entity.CheckContentIntegrity)
		assert.False(t, check.Passed)
		assert.Equal(t, 1, check.Metrics["missing"])
	})
}

func TestIntegrityValidator_PrimaryKeys(t *testing.T) {
	source, target, session := migrateFixture(t, makeRawRows(10), nil)
	target.pkStats = outbound.PKStats{DuplicateKeys: 1}

	report := NewIntegrityValidator(source, target, nil, nil).
		Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 100})

	check := checkByName(t, report, entity.CheckPrimaryKey)
	assert.False(t, check.Passed, "zero tolerance for duplicate keys")
}

func TestIntegrityValidator_DataTypes(t *testing.T) {
	source, target, session := migrateFixture(t, makeRawRows(10), nil)

	// Flip a converted boolean in the target.
	row := target.tables[testTable]["A-0001"]
	row.IsEnabled = !row.IsEnabled
	target.tables[testTable]["A-0001"] = row

	report := NewIntegrityValidator(source, target, nil, nil).
		Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 100})

	check := checkByName(t, report, entity.CheckDataTypes)
	assert.False(t, check.Passed)
	assert.Contains(t, check.Detail, "is_enabled")
}

func TestIntegrityValidator_ChecksRunIndependently(t *testing.T) {
	source, target, session := migrateFixture(t, makeRawRows(10), nil)
	// Break the count; every other check must still run and report.
	delete(target.tables[testTable], "A-0000")

	report := NewIntegrityValidator(source, target, nil, nil).
		Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 100})

	assert.Len(t, report.Checks, 5)
	assert.False(t, checkByName(t, report, entity.CheckRecordCount).Passed)
	assert.True(t, checkByName(t, report, entity.CheckSchemaCompat).Passed)
	assert.True(t, checkByName(t, report, entity.CheckPrimaryKey).Passed)
}

func TestIntegrityValidator_FullChecksum(t *testing.T) {
	t.Run("identical content matches", func(t *testing.T) {
		source, target, session := migrateFixture(t, makeRawRows(35), nil)

		report := NewIntegrityValidator(source, target, nil, nil).
			Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 10, DeepChecksum: true})

		check := checkByName(t, report, entity.CheckFullChecksum)
		assert.True(t, check.Passed, "detail: %s error: %s", check.Detail, check.Error)
		assert.Equal(t, check.Metrics["source_checksum"], check.Metrics["target_checksum"])
	})

	t.Run("single field difference detected", func(t *testing.T) {
		source, target, session := migrateFixture(t, makeRawRows(35), nil)
		row := target.tables[testTable]["A-0030"]
		row.PurchasePrice++
		target.tables[testTable]["A-0030"] = row

		report := NewIntegrityValidator(source, target, nil, nil).
			Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 10, DeepChecksum: true})

		check := checkByName(t, report, entity.CheckFullChecksum)
		assert.False(t, check.Passed)
	})

	t.Run("skipped without deep checksum option", func(t *testing.T) {
		source, target, session := migrateFixture(t, makeRawRows(5), nil)

		report := NewIntegrityValidator(source, target, nil, nil).
			Validate(context.Background(), session, IntegrityValidatorOptions{SampleSize: 10})

		for _, c := range report.Checks {
			assert.NotEqual(t, entity.CheckFullChecksum, c.Name)
		}
	})
}
