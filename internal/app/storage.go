package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opslink/statuswatch/internal/checks"
	checkspostgres "github.com/opslink/statuswatch/internal/checks/postgres"
	checkssqlite "github.com/opslink/statuswatch/internal/checks/sqlite"
	"github.com/opslink/statuswatch/internal/config"
	"github.com/opslink/statuswatch/internal/incidents"
	incidentspostgres "github.com/opslink/statuswatch/internal/incidents/postgres"
	incidentssqlite "github.com/opslink/statuswatch/internal/incidents/sqlite"
	"github.com/opslink/statuswatch/internal/maintenance"
	maintenancepostgres "github.com/opslink/statuswatch/internal/maintenance/postgres"
	maintenancesqlite "github.com/opslink/statuswatch/internal/maintenance/sqlite"
	"github.com/opslink/statuswatch/internal/pkg/metrics"
	"github.com/opslink/statuswatch/internal/pkg/postgres"
	"github.com/opslink/statuswatch/internal/pkg/sqlite"
	"github.com/opslink/statuswatch/migrations"
)

// database is the open storage backend. Exactly one of pool and sqlDB is set.
type database struct {
	driver string
	pool   *pgxpool.Pool
	sqlDB  *sql.DB
}

// repositories holds the driver-specific repository implementations.
type repositories struct {
	checks      checks.Repository
	incidents   incidents.Repository
	maintenance maintenance.Repository
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Path, migrations.SQLiteSchema)
		if err != nil {
			return nil, err
		}
		return &database{driver: cfg.Driver, sqlDB: db}, nil

	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := postgres.Migrate(cfg.URL, migrations.Postgres()); err != nil {
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}

		pool, err := postgres.Connect(ctx, postgres.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnectAttempts: cfg.ConnectAttempts,
		})
		if err != nil {
			return nil, err
		}
		return &database{driver: cfg.Driver, pool: pool}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (d *database) repositories() repositories {
	if d.pool != nil {
		return repositories{
			checks:      checkspostgres.NewRepository(d.pool),
			incidents:   incidentspostgres.NewRepository(d.pool),
			maintenance: maintenancepostgres.NewRepository(d.pool),
		}
	}

	return repositories{
		checks:      checkssqlite.NewRepository(d.sqlDB),
		incidents:   incidentssqlite.NewRepository(d.sqlDB),
		maintenance: maintenancesqlite.NewRepository(d.sqlDB),
	}
}

func (d *database) Ping(ctx context.Context) error {
	if d.pool != nil {
		return d.pool.Ping(ctx)
	}
	return d.sqlDB.PingContext(ctx)
}

func (d *database) recordMetrics() {
	if d.pool != nil {
		metrics.RecordDBPoolMetrics(d.pool)
		return
	}
	metrics.RecordSQLDBMetrics(d.sqlDB)
}

func (d *database) Close() {
	if d.pool != nil {
		d.pool.Close()
		return
	}
	_ = d.sqlDB.Close()
}
