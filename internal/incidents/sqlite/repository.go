// Package sqlite provides SQLite implementation of incidents repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/incidents"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const incidentColumns = `id, service_id, title, reason, severity, start_time, end_time`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// Repository implements incidents.Repository using SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateIncident inserts an incident and its first update in one transaction.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident, update *domain.IncidentUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	query := `
		INSERT INTO incidents (id, service_id, title, reason, severity, start_time, end_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		id,
		incident.ServiceID,
		incident.Title,
		incident.Reason,
		incident.Severity,
		incident.StartTime.UnixNano(),
		nullableTime(incident.EndTime),
		time.Now().UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return incidents.ErrIncidentAlreadyOpen
		}
		return fmt.Errorf("create incident: %w", err)
	}

	update.IncidentID = id
	if err := createIncidentUpdate(ctx, tx, update); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	incident.ID = id
	return nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = ?`
	incident, err := scanIncident(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// GetOpenIncident retrieves the open incident of a service.
func (r *Repository) GetOpenIncident(ctx context.Context, serviceID string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE service_id = ? AND end_time IS NULL`
	incident, err := scanIncident(r.db.QueryRowContext(ctx, query, serviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get open incident: %w", err)
	}
	return incident, nil
}

// ListIncidents retrieves incidents with optional filters, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		query += " AND start_time >= ?"
		args = append(args, filter.Since.UnixNano())
	}
	if filter.ServiceID != "" {
		query += " AND service_id = ?"
		args = append(args, filter.ServiceID)
	}
	if filter.OpenOnly {
		query += " AND end_time IS NULL"
	}

	query += " ORDER BY start_time DESC, rowid DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE incidents SET end_time = ? WHERE id = ? AND end_time IS NULL`,
		endTime.UnixNano(), id,
	)
	if err != nil {
		return false, fmt.Errorf("resolve incident: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve incident: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	update.IncidentID = id
	if err := createIncidentUpdate(ctx, tx, update); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

// CreateIncidentUpdate appends an update to an incident.
func (r *Repository) CreateIncidentUpdate(ctx context.Context, update *domain.IncidentUpdate) error {
	return createIncidentUpdate(ctx, r.db, update)
}

func createIncidentUpdate(ctx context.Context, e execer, update *domain.IncidentUpdate) error {
	id := uuid.NewString()
	_, err := e.ExecContext(ctx,
		`INSERT INTO incident_updates (id, incident_id, message, timestamp) VALUES (?, ?, ?, ?)`,
		id, update.IncidentID, update.Message, update.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create incident update: %w", err)
	}
	update.ID = id
	return nil
}

// ListIncidentUpdates retrieves the updates of an incident, oldest first.
func (r *Repository) ListIncidentUpdates(ctx context.Context, incidentID string) ([]*domain.IncidentUpdate, error) {
	query := `
		SELECT id, incident_id, message, timestamp
		FROM incident_updates
		WHERE incident_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`
	rows, err := r.db.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	updates := make([]*domain.IncidentUpdate, 0)
	for rows.Next() {
		var (
			u  domain.IncidentUpdate
			ts int64
		)
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan incident update: %w", err)
		}
		u.Timestamp = time.Unix(0, ts).UTC()
		updates = append(updates, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident updates: %w", err)
	}

	return updates, nil
}

func scanIncident(row scanner) (*domain.Incident, error) {
	var (
		incident domain.Incident
		start    int64
		end      sql.NullInt64
	)
	err := row.Scan(
		&incident.ID,
		&incident.ServiceID,
		&incident.Title,
		&incident.Reason,
		&incident.Severity,
		&start,
		&end,
	)
	if err != nil {
		return nil, err
	}

	incident.StartTime = time.Unix(0, start).UTC()
	if end.Valid {
		t := time.Unix(0, end.Int64).UTC()
		incident.EndTime = &t
	}
	return &incident, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
