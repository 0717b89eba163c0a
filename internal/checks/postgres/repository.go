// Package postgres provides PostgreSQL implementation of checks repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opslink/statuswatch/internal/checks"
	"github.com/opslink/statuswatch/internal/domain"
)

// Repository implements checks.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateCheck inserts a check and fills its ID.
func (r *Repository) CreateCheck(ctx context.Context, check *domain.Check) error {
	query := `
		INSERT INTO checks (service_id, status, timestamp, reason, incident_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		check.ServiceID,
		check.Status,
		check.Timestamp,
		check.Reason,
		check.IncidentID,
	).Scan(&check.ID)
	if err != nil {
		return fmt.Errorf("create check: %w", err)
	}
	return nil
}

// ListChecks returns checks of a service since the given time, oldest first.
func (r *Repository) ListChecks(ctx context.Context, serviceID string, since time.Time) ([]*domain.Check, error) {
	query := `
		SELECT id, service_id, status, timestamp, reason, incident_id
		FROM checks
		WHERE service_id = $1 AND timestamp >= $2
		ORDER BY timestamp ASC, seq ASC
	`
	rows, err := r.db.Query(ctx, query, serviceID, since)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

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
		WHERE service_id = $1
		ORDER BY timestamp DESC, seq DESC
		LIMIT 1
	`
	check, err := scanCheck(r.db.QueryRow(ctx, query, serviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checks.ErrNoChecks
		}
		return nil, fmt.Errorf("get latest check: %w", err)
	}
	return check, nil
}

// DeleteChecksBefore removes checks older than before.
func (r *Repository) DeleteChecksBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM checks WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete checks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCheck(row pgx.Row) (*domain.Check, error) {
	var check domain.Check
	err := row.Scan(
		&check.ID,
		&check.ServiceID,
		&check.Status,
		&check.Timestamp,
		&check.Reason,
		&check.IncidentID,
	)
	if err != nil {
		return nil, err
	}
	check.Timestamp = check.Timestamp.UTC()
	return &check, nil
}
