package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opslink/statuswatch/internal/pkg/postgres"
	"github.com/opslink/statuswatch/internal/pkg/sqlite"
	"github.com/opslink/statuswatch/migrations"
)

// NewSQLiteDB opens a fresh sqlite database with the full schema in a temporary directory.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "statuswatch.db"), migrations.SQLiteSchema)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// SetupPostgres starts a PostgreSQL container, applies migrations and returns a pool.
// The container is terminated by the returned cleanup function.
func SetupPostgres(ctx context.Context) (*pgxpool.Pool, func(), error) {
	container, err := NewPostgresContainer(ctx)
	if err != nil {
		return nil, nil, err
	}

	terminate := func() { _ = container.Terminate(context.Background()) }

	if err := postgres.Migrate(container.ConnectionString, migrations.Postgres()); err != nil {
		terminate()
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, container.ConnectionString)
	if err != nil {
		terminate()
		return nil, nil, err
	}

	return pool, func() {
		pool.Close()
		terminate()
	}, nil
}

// TruncatePostgres empties all tables between tests.
func TruncatePostgres(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`TRUNCATE checks, incident_updates, incidents, maintenance_windows CASCADE`)
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
