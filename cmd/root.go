package cmd

import (
	"fmt"
	"os"
	"strings"

	"tenantmigrate/internal/application/common/logging"
	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tenantmigrate",
	Short: "Tenant asset store migration tool",
	Long: `TenantMigrate moves a tenant's embedded single-file asset store into a
tenant-scoped table in the shared PostgreSQL cluster.

The tool supports:
- Pre-flight source inspection and schema verification
- Verified, optionally compressed backup artifacts with checksum metadata
- Batched, resumable, idempotent data transfer
- Post-migration integrity and query performance validation
- Staged rollback restoring the pre-migration state from a backup`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). A failed command exits
// non-zero; success exits zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	// Bind flags to viper
	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Set config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("TENANTMIGRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; use defaults and environment
	}

	// Load configuration
	cfg = config.New(v)

	setupLogging(cfg)
}

func setupLogging(cfg *config.Config) {
	logger, err := logging.NewApplicationLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		return
	}
	slogger.SetGlobalLogger(logger)
}

func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.table", "assets")

	// Target defaults
	v.SetDefault("target.host", "localhost")
	v.SetDefault("target.port", 5432)
	v.SetDefault("target.name", "tenants")
	v.SetDefault("target.sslmode", "disable")
	v.SetDefault("target.schema", "public")
	v.SetDefault("target.max_connections", 10)
	v.SetDefault("target.min_connections", 2)
	v.SetDefault("target.query_timeout", "30s")
	v.SetDefault("target.conn_max_lifetime", "30m")

	// Migration defaults
	v.SetDefault("migration.batch_size", 1000)
	v.SetDefault("migration.max_retries", 3)

	// Backup defaults
	v.SetDefault("backup.directory", "./backups")
	v.SetDefault("backup.compress", true)
	v.SetDefault("backup.verify", true)
	v.SetDefault("backup.retention_days", 30)

	// Validation defaults
	v.SetDefault("validation.sample_size", config.DefaultSampleSize)
	v.SetDefault("validation.latency_threshold", "50ms")

	// Report defaults
	v.SetDefault("reports.output_dir", "./reports")

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}
