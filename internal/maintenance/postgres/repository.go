// Package postgres provides PostgreSQL implementation of maintenance repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/maintenance"
)

// Repository implements maintenance.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateWindow inserts a maintenance window and fills its ID.
func (r *Repository) CreateWindow(ctx context.Context, window *domain.MaintenanceWindow) error {
	if window.CreatedAt.IsZero() {
		window.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO maintenance_windows (service_id, start_time, end_time, reason, created_at)
		VALUES (NULLIF($1::text, ''), $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		window.ServiceID,
		window.StartTime,
		window.EndTime,
		window.Reason,
		window.CreatedAt,
	).Scan(&window.ID)
	if err != nil {
		return fmt.Errorf("create maintenance window: %w", err)
	}
	return nil
}

// ListWindows returns matching windows, most recently created first.
func (r *Repository) ListWindows(ctx context.Context, filter maintenance.WindowFilter) ([]*domain.MaintenanceWindow, error) {
	query := `
		SELECT id, COALESCE(service_id, ''), start_time, end_time, reason, created_at
		FROM maintenance_windows
		WHERE 1=1
	`
	var args []any
	argNum := 1

	if !filter.ActiveAt.IsZero() {
		query += fmt.Sprintf(" AND start_time <= $%d AND end_time >= $%d", argNum, argNum)
		args = append(args, filter.ActiveAt)
		argNum++
	}
	if !filter.EndsAfter.IsZero() {
		query += fmt.Sprintf(" AND end_time > $%d", argNum)
		args = append(args, filter.EndsAfter)
		argNum++
	}
	if filter.ServiceID != "" {
		query += fmt.Sprintf(" AND (service_id IS NULL OR service_id = $%d)", argNum)
		args = append(args, filter.ServiceID)
		argNum++
	}

	query += " ORDER BY created_at DESC, seq DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list maintenance windows: %w", err)
	}
	defer rows.Close()

	windows := make([]*domain.MaintenanceWindow, 0)
	for rows.Next() {
		var w domain.MaintenanceWindow
		if err := rows.Scan(&w.ID, &w.ServiceID, &w.StartTime, &w.EndTime, &w.Reason, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan maintenance window: %w", err)
		}
		w.StartTime = w.StartTime.UTC()
		w.EndTime = w.EndTime.UTC()
		w.CreatedAt = w.CreatedAt.UTC()
		windows = append(windows, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate maintenance windows: %w", err)
	}

	return windows, nil
}
