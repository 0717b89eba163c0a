//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opslink/statuswatch/internal/maintenance"
	"github.com/opslink/statuswatch/internal/maintenance/maintenancetest"
	"github.com/opslink/statuswatch/internal/testutil"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	pool, cleanup, err := testutil.SetupPostgres(context.Background())
	if err != nil {
		log.Fatalf("setup postgres: %v", err)
	}
	testDB = pool

	code := m.Run()
	cleanup()
	os.Exit(code)
}

func TestRepository(t *testing.T) {
	maintenancetest.RunRepositoryTests(t, func(t *testing.T) maintenance.Repository {
		testutil.TruncatePostgres(t, testDB)
		return NewRepository(testDB)
	})
}
