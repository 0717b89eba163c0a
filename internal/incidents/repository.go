package incidents

import (
	"context"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
)

// IncidentFilter narrows ListIncidents. Zero values disable a filter.
type IncidentFilter struct {
	Since     time.Time
	ServiceID string
	OpenOnly  bool
	Limit     int
}

// Repository defines the data access interface for incidents.
// Multi-row writes are atomic inside the implementation.
type Repository interface {
	// CreateIncident stores the incident together with its first update.
	// Returns ErrIncidentAlreadyOpen if the service has an open incident.
	CreateIncident(ctx context.Context, incident *domain.Incident, update *domain.IncidentUpdate) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	// GetOpenIncident returns ErrIncidentNotFound when the service has no open incident.
	GetOpenIncident(ctx context.Context, serviceID string) (*domain.Incident, error)
	// ListIncidents returns incidents newest first.
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]*domain.Incident, error)
	// ResolveIncident sets end_time only if the incident is still open and then appends update.
	// Returns false without error when the incident was already resolved.
	ResolveIncident(ctx context.Context, id string, endTime time.Time, update *domain.IncidentUpdate) (bool, error)
	CreateIncidentUpdate(ctx context.Context, update *domain.IncidentUpdate) error
	// ListIncidentUpdates returns updates oldest first.
	ListIncidentUpdates(ctx context.Context, incidentID string) ([]*domain.IncidentUpdate, error)
}
