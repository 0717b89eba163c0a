// Package migrations embeds the database schemas.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.up.sql *.down.sql
var postgresFS embed.FS

// SQLiteSchema is the idempotent schema applied when the sqlite driver opens a database.
//
//go:embed sqlite.sql
var SQLiteSchema string

// Postgres returns the golang-migrate source files for PostgreSQL.
func Postgres() fs.FS {
	return postgresFS
}
