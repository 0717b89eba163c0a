// Package postgres provides PostgreSQL implementation of incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/incidents"
)

const (
	uniqueViolation      = "23505"
	openIncidentIndex    = "uq_incidents_open_service"
	incidentSelectColumn = `id, service_id, title, reason, severity, start_time, end_time`
)

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIncident inserts an incident and its first update in one transaction.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident, update *domain.IncidentUpdate) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO incidents (service_id, title, reason, severity, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		incident.ServiceID,
		incident.Title,
		incident.Reason,
		incident.Severity,
		incident.StartTime,
		incident.EndTime,
	).Scan(&incident.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openIncidentIndex {
			return incidents.ErrIncidentAlreadyOpen
		}
		return fmt.Errorf("create incident: %w", err)
	}

	update.IncidentID = incident.ID
	if err := r.createIncidentUpdate(ctx, tx, update); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	if uuid.Validate(id) != nil {
		return nil, incidents.ErrIncidentNotFound
	}

	query := `SELECT ` + incidentSelectColumn + ` FROM incidents WHERE id = $1`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// GetOpenIncident retrieves the open incident of a service.
func (r *Repository) GetOpenIncident(ctx context.Context, serviceID string) (*domain.Incident, error) {
	query := `SELECT ` + incidentSelectColumn + ` FROM incidents WHERE service_id = $1 AND end_time IS NULL`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, serviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get open incident: %w", err)
	}
	return incident, nil
}

// ListIncidents retrieves incidents with optional filters, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentSelectColumn + ` FROM incidents WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND start_time >= $%d", argNum)
		args = append(args, filter.Since)
		argNum++
	}

	if filter.ServiceID != "" {
		query += fmt.Sprintf(" AND service_id = $%d", argNum)
		args = append(args, filter.ServiceID)
		argNum++
	}

	if filter.OpenOnly {
		query += " AND end_time IS NULL"
	}

	query += " ORDER BY start_time DESC, seq DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		list = append(list, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	return list, nil
}

// ResolveIncident closes an open incident and appends update in one transaction.
func (r *Repository) ResolveIncident(ctx context.Context, id string, endTime time.Time, update *domain.IncidentUpdate) (bool, error) {
	if uuid.Validate(id) != nil {
		return false, incidents.ErrIncidentNotFound
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE incidents SET end_time = $2 WHERE id = $1 AND end_time IS NULL`,
		id, endTime,
	)
	if err != nil {
		return false, fmt.Errorf("resolve incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	update.IncidentID = id
	if err := r.createIncidentUpdate(ctx, tx, update); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

// CreateIncidentUpdate appends an update to an incident.
func (r *Repository) CreateIncidentUpdate(ctx context.Context, update *domain.IncidentUpdate) error {
	return r.createIncidentUpdate(ctx, r.db, update)
}

func (r *Repository) createIncidentUpdate(ctx context.Context, q querier, update *domain.IncidentUpdate) error {
	query := `
		INSERT INTO incident_updates (incident_id, message, timestamp)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := q.QueryRow(ctx, query, update.IncidentID, update.Message, update.Timestamp).Scan(&update.ID); err != nil {
		return fmt.Errorf("create incident update: %w", err)
	}
	return nil
}

// ListIncidentUpdates retrieves the updates of an incident, oldest first.
func (r *Repository) ListIncidentUpdates(ctx context.Context, incidentID string) ([]*domain.IncidentUpdate, error) {
	if uuid.Validate(incidentID) != nil {
		return make([]*domain.IncidentUpdate, 0), nil
	}

	query := `
		SELECT id, incident_id, message, timestamp
		FROM incident_updates
		WHERE incident_id = $1
		ORDER BY timestamp ASC, seq ASC
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	defer rows.Close()

	updates := make([]*domain.IncidentUpdate, 0)
	for rows.Next() {
		var u domain.IncidentUpdate
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.Message, &u.Timestamp); err != nil {
			return nil, fmt.Errorf("scan incident update: %w", err)
		}
		u.Timestamp = u.Timestamp.UTC()
		updates = append(updates, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident updates: %w", err)
	}

	return updates, nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var incident domain.Incident
	err := row.Scan(
		&incident.ID,
		&incident.ServiceID,
		&incident.Title,
		&incident.Reason,
		&incident.Severity,
		&incident.StartTime,
		&incident.EndTime,
	)
	if err != nil {
		return nil, err
	}

	incident.StartTime = incident.StartTime.UTC()
	if incident.EndTime != nil {
		end := incident.EndTime.UTC()
		incident.EndTime = &end
	}
	return &incident, nil
}
