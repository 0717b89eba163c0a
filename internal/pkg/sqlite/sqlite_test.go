package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(ctx, path, `CREATE TABLE IF NOT EXISTS things (id TEXT PRIMARY KEY);`)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(ctx, `INSERT INTO things (id) VALUES ('a')`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM things`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpen_InvalidSchema(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "bad.db"), `CREATE TABLE (`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply sqlite schema")
}

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		dsn("a.db"))
	assert.Equal(t,
		"file:a.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		dsn("file:a.db?mode=rwc"))
}
