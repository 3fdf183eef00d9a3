package cmd

import (
	"context"
	"fmt"

	"tenantmigrate/internal/adapter/outbound/messaging"
	"tenantmigrate/internal/adapter/outbound/mock"
	"tenantmigrate/internal/adapter/outbound/postgres"
	"tenantmigrate/internal/adapter/outbound/sqlite"
	"tenantmigrate/internal/application/common/metrics"
	"tenantmigrate/internal/application/common/retry"
	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/application/service"
	"tenantmigrate/internal/config"
	"tenantmigrate/internal/port/outbound"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTargetPool creates the target database connection pool and verifies
// connectivity. Transient connection failures are retried with backoff;
// configuration errors fail immediately.
func setupTargetPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dbConfig := postgres.DatabaseConfig{
		Host:            cfg.Target.Host,
		Port:            cfg.Target.Port,
		Database:        cfg.Target.Name,
		Username:        cfg.Target.User,
		Password:        cfg.Target.Password,
		Schema:          cfg.Target.Schema,
		MaxConnections:  cfg.Target.MaxConnections,
		MinConnections:  cfg.Target.MinConnections,
		ConnMaxLifetime: cfg.Target.ConnMaxLifetime,
		SSLMode:         cfg.Target.SSLMode,
	}

	var pool *pgxpool.Pool
	err := retry.WithRetry(ctx, func(ctx context.Context) error {
		p, err := postgres.NewConnectionPool(ctx, dbConfig)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	return pool, err
}

// postgresTarget wraps the pool in the tenant-aware target store adapter
// carrying the configured per-call query timeout.
func postgresTarget(cfg *config.Config, pool *pgxpool.Pool) *postgres.TargetStore {
	return postgres.NewTargetStore(pool, cfg.Target.QueryTimeout)
}

// setupSourceStore opens the embedded source store read-only.
func setupSourceStore(cfg *config.Config, path string) (*sqlite.SourceStore, error) {
	if path == "" {
		path = cfg.Source.Path
	}
	if path == "" {
		return nil, fmt.Errorf("source path is required (flag --source or config source.path)")
	}
	return sqlite.Open(path, cfg.Source.Table)
}

// setupEventPublisher creates the NATS lifecycle event publisher when
// enabled. With NATS off or unreachable, events go to an in-memory recorder
// so the pipeline's event flow stays uniform.
func setupEventPublisher(cfg *config.Config) outbound.EventPublisher {
	if !cfg.NATS.Enabled {
		return mock.NewEventPublisher()
	}
	publisher, err := messaging.NewNATSEventPublisher(cfg.NATS)
	if err != nil {
		slogger.WarnNoCtx("Lifecycle events degraded to in-memory: NATS connection failed", slogger.Fields{
			"url":   cfg.NATS.URL,
			"error": err.Error(),
		})
		return mock.NewEventPublisher()
	}
	return publisher
}

// setupMetrics installs the global meter provider and creates the pipeline
// metric instruments. Metrics are best-effort; a failure only disables them.
func setupMetrics(ctx context.Context, toolVersion string) (*metrics.MigrationMetrics, *metrics.Provider) {
	provider, err := metrics.SetupProvider(ctx, "tenantmigrate", toolVersion)
	if err != nil {
		slogger.WarnNoCtx("Metrics disabled", slogger.Fields{"error": err.Error()})
		return nil, nil
	}
	m, err := metrics.NewMigrationMetrics()
	if err != nil {
		slogger.WarnNoCtx("Metrics disabled", slogger.Fields{"error": err.Error()})
		return nil, provider
	}
	return m, provider
}

// logMetricTotals dumps the run's accumulated counters before shutdown.
func logMetricTotals(ctx context.Context, provider *metrics.Provider) {
	if provider == nil {
		return
	}
	if totals := provider.CounterTotals(ctx); len(totals) > 0 {
		fields := make(slogger.Fields, len(totals))
		for name, value := range totals {
			fields[name] = value
		}
		slogger.Info(ctx, "Run metrics", fields)
	}
	if err := provider.Shutdown(ctx); err != nil {
		slogger.WarnNoCtx("Metric provider shutdown failed", slogger.Fields{"error": err.Error()})
	}
}

// setupBackupManager creates the backup manager with the standalone source
// integrity checker.
func setupBackupManager(cfg *config.Config, toolVersion string) (*service.BackupManager, error) {
	return service.NewBackupManager(cfg.Backup.Directory, toolVersion, sqlite.CheckFileIntegrity)
}

// loadPolicy loads the exclusion policy named by flag or config. An empty
// path yields an empty policy.
func loadPolicy(cfg *config.Config, path string) (*service.ExclusionPolicy, error) {
	if path == "" {
		path = cfg.Migration.PolicyFile
	}
	return service.LoadPolicy(path)
}
