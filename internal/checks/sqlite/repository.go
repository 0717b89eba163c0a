// Package sqlite provides SQLite implementation of checks repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opslink/statuswatch/internal/checks"
	"github.com/opslink/statuswatch/internal/domain"
)

// Repository implements checks.Repository using SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateCheck inserts a check and fills its ID.
func (r *Repository) CreateCheck(ctx context.Context, check *domain.Check) error {
	id := uuid.NewString()
	query := `
		INSERT INTO checks (id, service_id, status, timestamp, reason, incident_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		id,
		check.ServiceID,
		check.Status,
		check.Timestamp.UnixNano(),
		check.Reason,
		check.IncidentID,
	)
	if err != nil {
		return fmt.Errorf("create check: %w", err)
	}
	check.ID = id
	return nil
}

// ListChecks returns checks of a service since the given time, oldest first.
func (r *Repository) ListChecks(ctx context.Context, serviceID string, since time.Time) ([]*domain.Check, error) {
	query := `
		SELECT id, service_id, status, timestamp, reason, incident_id
		FROM checks
		WHERE service_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC, rowid ASC
	`
	rows, err := r.db.QueryContext(ctx, query, serviceID, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := make([]*domain.Check, 0)
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		history = append(history, check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checks: %w", err)
	}

	return history, nil
}

// GetLatestCheck returns the most recent check of a service.
func (r *Repository) GetLatestCheck(ctx context.Context, serviceID string) (*domain.Check, error) {
	query := `
		SELECT id, service_id, status, timestamp, reason, incident_id
		FROM checks
		WHERE service_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT 1
	`
	check, err := scanCheck(r.db.QueryRowContext(ctx, query, serviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checks.ErrNoChecks
		}
		return nil, fmt.Errorf("get latest check: %w", err)
	}
	return check, nil
}

// DeleteChecksBefore removes checks older than before.
func (r *Repository) DeleteChecksBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM checks WHERE timestamp < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete checks: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheck(row scanner) (*domain.Check, error) {
	var (
		check      domain.Check
		ts         int64
		reason     sql.NullString
		incidentID sql.NullString
	)
	if err := row.Scan(&check.ID, &check.ServiceID, &check.Status, &ts, &reason, &incidentID); err != nil {
		return nil, err
	}

	check.Timestamp = time.Unix(0, ts).UTC()
	if reason.Valid {
		check.Reason = &reason.String
	}
	if incidentID.Valid {
		check.IncidentID = &incidentID.String
	}
	return &check, nil
}
