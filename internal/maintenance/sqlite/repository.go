// Package sqlite provides SQLite implementation of maintenance repository.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/maintenance"
)

// Repository implements maintenance.Repository using SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateWindow inserts a maintenance window and fills its ID.
func (r *Repository) CreateWindow(ctx context.Context, window *domain.MaintenanceWindow) error {
	if window.CreatedAt.IsZero() {
		window.CreatedAt = time.Now().UTC()
	}

	id := uuid.NewString()
	query := `
		INSERT INTO maintenance_windows (id, service_id, start_time, end_time, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		id,
		sql.NullString{String: window.ServiceID, Valid: window.ServiceID != ""},
		window.StartTime.UnixNano(),
		window.EndTime.UnixNano(),
		window.Reason,
		window.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create maintenance window: %w", err)
	}

	window.ID = id
	return nil
}

// ListWindows returns matching windows, most recently created first.
func (r *Repository) ListWindows(ctx context.Context, filter maintenance.WindowFilter) ([]*domain.MaintenanceWindow, error) {
	query := `
		SELECT id, service_id, start_time, end_time, reason, created_at
		FROM maintenance_windows
		WHERE 1=1
	`
	var args []any

	if !filter.ActiveAt.IsZero() {
		query += " AND start_time <= ? AND end_time >= ?"
		args = append(args, filter.ActiveAt.UnixNano(), filter.ActiveAt.UnixNano())
	}
	if !filter.EndsAfter.IsZero() {
		query += " AND end_time > ?"
		args = append(args, filter.EndsAfter.UnixNano())
	}
	if filter.ServiceID != "" {
		query += " AND (service_id IS NULL OR service_id = ?)"
		args = append(args, filter.ServiceID)
	}

	query += " ORDER BY created_at DESC, rowid DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list maintenance windows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	windows := make([]*domain.MaintenanceWindow, 0)
	for rows.Next() {
		var (
			w                         domain.MaintenanceWindow
			serviceID                 sql.NullString
			start, end, createdAtNano int64
		)
		if err := rows.Scan(&w.ID, &serviceID, &start, &end, &w.Reason, &createdAtNano); err != nil {
			return nil, fmt.Errorf("scan maintenance window: %w", err)
		}
		w.ServiceID = serviceID.String
		w.StartTime = time.Unix(0, start).UTC()
		w.EndTime = time.Unix(0, end).UTC()
		w.CreatedAt = time.Unix(0, createdAtNano).UTC()
		windows = append(windows, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate maintenance windows: %w", err)
	}

	return windows, nil
}
