package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validViper() *viper.Viper {
	v := viper.New()
	v.Set("source.path", "/var/lib/tenants/acme/assets.db")
	v.Set("source.table", "assets")
	v.Set("target.host", "localhost")
	v.Set("target.port", 5432)
	v.Set("target.user", "migrator")
	v.Set("target.name", "tenants")
	v.Set("migration.batch_size", 500)
	v.Set("migration.max_retries", 3)
	v.Set("validation.sample_size", 1000)
	v.Set("validation.latency_threshold", "50ms")
	v.Set("backup.retention_days", 30)
	return v
}

func TestNew_LoadsConfiguration(t *testing.T) {
	cfg := New(validViper())

	assert.Equal(t, "/var/lib/tenants/acme/assets.db", cfg.Source.Path)
	assert.Equal(t, "assets", cfg.Source.Table)
	assert.Equal(t, "localhost", cfg.Target.Host)
	assert.Equal(t, 5432, cfg.Target.Port)
	assert.Equal(t, 500, cfg.Migration.BatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Validation.LatencyThreshold)
}

func TestNew_PanicsOnInvalidConfig(t *testing.T) {
	v := validViper()
	v.Set("migration.batch_size", 0)

	assert.Panics(t, func() {
		New(v)
	})
}

func TestTargetConfig_DSN(t *testing.T) {
	cfg := New(validViper())
	cfg.Target.Password = "secret"
	cfg.Target.SSLMode = "disable"
	cfg.Target.Schema = "public"

	dsn := cfg.Target.DSN()

	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "dbname=tenants")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(v *viper.Viper)
		expectedErr string
	}{
		{
			name:        "missing target user",
			mutate:      func(v *viper.Viper) { v.Set("target.user", "") },
			expectedErr: "target.user is required",
		},
		{
			name:        "missing target database",
			mutate:      func(v *viper.Viper) { v.Set("target.name", "") },
			expectedErr: "target.name is required",
		},
		{
			name:        "port out of range",
			mutate:      func(v *viper.Viper) { v.Set("target.port", 70000) },
			expectedErr: "target.port must be between 1 and 65535",
		},
		{
			name:        "zero batch size",
			mutate:      func(v *viper.Viper) { v.Set("migration.batch_size", 0) },
			expectedErr: "migration.batch_size must be at least 1",
		},
		{
			name:        "negative max retries",
			mutate:      func(v *viper.Viper) { v.Set("migration.max_retries", -1) },
			expectedErr: "migration.max_retries cannot be negative",
		},
		{
			name:        "negative resume offset",
			mutate:      func(v *viper.Viper) { v.Set("migration.resume_offset", -5) },
			expectedErr: "migration.resume_offset cannot be negative",
		},
		{
			name:        "sample size above cap",
			mutate:      func(v *viper.Viper) { v.Set("validation.sample_size", 20000) },
			expectedErr: "validation.sample_size cannot exceed 10000",
		},
		{
			name:        "non-positive latency threshold",
			mutate:      func(v *viper.Viper) { v.Set("validation.latency_threshold", "0s") },
			expectedErr: "validation.latency_threshold must be positive",
		},
		{
			name:        "negative retention",
			mutate:      func(v *viper.Viper) { v.Set("backup.retention_days", -1) },
			expectedErr: "backup.retention_days cannot be negative",
		},
		{
			name: "nats enabled without url",
			mutate: func(v *viper.Viper) {
				v.Set("nats.enabled", true)
				v.Set("nats.url", "")
			},
			expectedErr: "nats.url is required when nats.enabled is set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validViper()
			tt.mutate(v)

			var cfg Config
			require.NoError(t, v.Unmarshal(&cfg))

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestConfig_Validate_AcceptsValidConfig(t *testing.T) {
	var cfg Config
	require.NoError(t, validViper().Unmarshal(&cfg))
	require.NoError(t, cfg.Validate())
}
