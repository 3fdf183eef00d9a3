package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	Source     SourceConfig     `mapstructure:"source"`
	Target     TargetConfig     `mapstructure:"target"`
	Migration  MigrationConfig  `mapstructure:"migration"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Validation ValidationConfig `mapstructure:"validation"`
	Reports    ReportsConfig    `mapstructure:"reports"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Log        LogConfig        `mapstructure:"log"`
}

// SourceConfig locates the embedded source store.
type SourceConfig struct {
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
}

// TargetConfig holds target database configuration.
type TargetConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Schema          string        `mapstructure:"schema"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the database connection string.
func (t TargetConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		t.Host, t.Port, t.User, t.Password, t.Name, t.SSLMode, t.Schema)
}

// MigrationConfig holds batch transfer configuration.
type MigrationConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	BatchSize    int    `mapstructure:"batch_size"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PolicyFile   string `mapstructure:"policy_file"`
	ResumeOffset int64  `mapstructure:"resume_offset"`
	DryRun       bool   `mapstructure:"dry_run"`
}

// BackupConfig holds backup artifact configuration.
type BackupConfig struct {
	Directory     string `mapstructure:"directory"`
	Compress      bool   `mapstructure:"compress"`
	Verify        bool   `mapstructure:"verify"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// ValidationConfig holds integrity and performance validation configuration.
type ValidationConfig struct {
	SampleSize       int           `mapstructure:"sample_size"`
	DeepChecksum     bool          `mapstructure:"deep_checksum"`
	Strict           bool          `mapstructure:"strict"`
	LatencyThreshold time.Duration `mapstructure:"latency_threshold"`
	ExpectedIndexes  []string      `mapstructure:"expected_indexes"`
}

// ReportsConfig holds run report output configuration.
type ReportsConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// NATSConfig holds NATS configuration for lifecycle events.
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validation sample size bounds.
const (
	DefaultSampleSize = 1000
	MaxSampleSize     = 10000
)

// New creates a new Config instance from Viper.
func New(v *viper.Viper) *Config {
	var config Config

	// Unmarshal configuration
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	return &config
}

// Validate checks if the configuration is valid. Malformed configuration is
// rejected here, before any phase runs.
func (c *Config) Validate() error {
	if c.Target.User == "" {
		return errors.New("target.user is required")
	}
	if c.Target.Name == "" {
		return errors.New("target.name is required")
	}
	if c.Target.Port < 1 || c.Target.Port > 65535 {
		return errors.New("target.port must be between 1 and 65535")
	}

	if c.Migration.BatchSize < 1 {
		return errors.New("migration.batch_size must be at least 1")
	}
	if c.Migration.MaxRetries < 0 {
		return errors.New("migration.max_retries cannot be negative")
	}
	if c.Migration.ResumeOffset < 0 {
		return errors.New("migration.resume_offset cannot be negative")
	}

	if c.Validation.SampleSize < 1 {
		return errors.New("validation.sample_size must be at least 1")
	}
	if c.Validation.SampleSize > MaxSampleSize {
		return fmt.Errorf("validation.sample_size cannot exceed %d", MaxSampleSize)
	}
	if c.Validation.LatencyThreshold <= 0 {
		return errors.New("validation.latency_threshold must be positive")
	}

	if c.Backup.RetentionDays < 0 {
		return errors.New("backup.retention_days cannot be negative")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats.enabled is set")
	}

	return nil
}
