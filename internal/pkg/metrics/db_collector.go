package metrics

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordDBPoolMetrics updates database pool metrics from a pgx pool.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()
	recordPool(stats.AcquiredConns(), stats.IdleConns(), stats.MaxConns())
}

// RecordSQLDBMetrics updates database pool metrics from a database/sql handle.
func RecordSQLDBMetrics(db *sql.DB) {
	stats := db.Stats()
	recordPool(int32(stats.InUse), int32(stats.Idle), int32(stats.MaxOpenConnections))
}

func recordPool(inUse, idle, maxConns int32) {
	DBPoolConnections.WithLabelValues("in_use").Set(float64(inUse))
	DBPoolConnections.WithLabelValues("idle").Set(float64(idle))
	DBPoolConnections.WithLabelValues("max").Set(float64(maxConns))
}
