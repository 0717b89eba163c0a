// Package incidents manages the incident lifecycle driven by status checks and admin commands.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opslink/statuswatch/internal/checks"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/pkg/ctxlog"
	"github.com/opslink/statuswatch/internal/pkg/keylock"
	"github.com/opslink/statuswatch/internal/pkg/metrics"
)

// Update messages appended by the lifecycle.
const (
	MessageWentOffline = "Service went offline"
	MessageRestored    = "Service restored"
	MessageResolved    = "Incident resolved"
	messageDeclared    = "Incident declared: "
)

// Action describes an incident state change caused by a check.
type Action string

// Actions.
const (
	ActionOpened   Action = "opened"
	ActionResolved Action = "resolved"
)

// Transition is returned by ProcessCheck when a check opened or resolved an incident.
type Transition struct {
	Action   Action
	Incident *domain.Incident
}

// CheckRecorder reads and appends the check history.
type CheckRecorder interface {
	Now() time.Time
	Latest(ctx context.Context, serviceID string) (*domain.Check, error)
	RecordAt(ctx context.Context, at time.Time, serviceID string, status domain.Status, reason string, incidentID *string) (*domain.Check, error)
}

// ServiceResolver looks up catalog services.
type ServiceResolver interface {
	Get(id string) (domain.Service, error)
}

// MaintenanceChecker reports the maintenance window covering a service.
type MaintenanceChecker interface {
	ActiveWindowFor(ctx context.Context, serviceID string, now time.Time) (*domain.MaintenanceWindow, error)
}

// Notifier receives incident lifecycle events. Implementations must not block.
type Notifier interface {
	IncidentOpened(ctx context.Context, incident *domain.Incident)
	IncidentResolved(ctx context.Context, incident *domain.Incident)
}

// Invalidator is told when incident state visible to readers has changed.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithNotifier sets the notification sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMaintenanceSuppression stops automatic incidents from opening while a
// maintenance window covers the service.
func WithMaintenanceSuppression(m MaintenanceChecker) Option {
	return func(s *Service) { s.maintenance = m }
}

// WithInvalidator registers a reader cache to invalidate after mutations.
func WithInvalidator(i Invalidator) Option {
	return func(s *Service) { s.invalidator = i }
}

// Service implements the incident lifecycle.
// Every mutation for a service runs under that service's lock, shared by poll ticks and admin commands.
type Service struct {
	repo        Repository
	history     CheckRecorder
	services    ServiceResolver
	locks       *keylock.KeyLock
	notifier    Notifier
	maintenance MaintenanceChecker
	invalidator Invalidator
}

// NewService creates a new incident service.
func NewService(repo Repository, history CheckRecorder, services ServiceResolver, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		history:  history,
		services: services,
		locks:    keylock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessCheck records a classified status for a service and applies the incident transition
// implied by the previous status. A service without history counts as not down.
func (s *Service) ProcessCheck(ctx context.Context, serviceID string, status domain.Status, reason string) (*domain.Check, *Transition, error) {
	svc, err := s.services.Get(serviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("process check: %w", err)
	}

	unlock := s.locks.Lock(serviceID)
	defer unlock()

	latest, err := s.history.Latest(ctx, serviceID)
	if err != nil {
		return nil, nil, err
	}

	at := checks.NextTimestamp(s.history.Now(), latest)
	wasDown := latest != nil && latest.Status.IsDown()

	var (
		incidentID *string
		transition *Transition
	)

	switch {
	case !wasDown && status.IsDown():
		incident, opened, err := s.openOnOutage(ctx, svc, reason, at)
		if err != nil {
			return nil, nil, err
		}
		if incident != nil {
			incidentID = &incident.ID
		}
		if opened {
			transition = &Transition{Action: ActionOpened, Incident: incident}
			s.afterChange(ctx, ActionOpened, incident)
		}

	case wasDown && !status.IsDown():
		incident, err := s.resolveOnRecovery(ctx, serviceID, at)
		if err != nil {
			return nil, nil, err
		}
		if incident != nil {
			transition = &Transition{Action: ActionResolved, Incident: incident}
			s.afterChange(ctx, ActionResolved, incident)
		}

	case wasDown && status.IsDown():
		open, err := s.openIncident(ctx, serviceID)
		if err != nil {
			return nil, nil, err
		}
		if open != nil {
			incidentID = &open.ID
		}
	}

	// The transition above is committed and announced. A failed write here
	// only loses this sample.
	check, err := s.history.RecordAt(ctx, at, serviceID, status, reason, incidentID)
	if err != nil {
		return nil, nil, err
	}

	return check, transition, nil
}

// openOnOutage opens an automatic incident, or returns the already open one.
// opened reports whether a new incident was created.
func (s *Service) openOnOutage(ctx context.Context, svc domain.Service, reason string, at time.Time) (incident *domain.Incident, opened bool, err error) {
	if s.suppressed(ctx, svc.ID, at) {
		incident, err = s.openIncident(ctx, svc.ID)
		return incident, false, err
	}

	incident = &domain.Incident{
		ServiceID: svc.ID,
		Title:     svc.Name + " is down",
		Reason:    reason,
		Severity:  domain.SeverityCritical,
		StartTime: at,
	}
	update := &domain.IncidentUpdate{Message: MessageWentOffline, Timestamp: at}

	err = s.repo.CreateIncident(ctx, incident, update)
	if errors.Is(err, ErrIncidentAlreadyOpen) {
		incident, err = s.openIncident(ctx, svc.ID)
		return incident, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("open incident: %w", err)
	}

	return incident, true, nil
}

func (s *Service) suppressed(ctx context.Context, serviceID string, at time.Time) bool {
	if s.maintenance == nil {
		return false
	}

	window, err := s.maintenance.ActiveWindowFor(ctx, serviceID, at)
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to check maintenance, not suppressing",
			"service_id", serviceID,
			"error", err,
		)
		return false
	}
	if window == nil {
		return false
	}

	ctxlog.FromContext(ctx).Info("outage during maintenance, incident suppressed",
		"service_id", serviceID,
		"maintenance_id", window.ID,
	)
	return true
}

// resolveOnRecovery closes the open incident of a service, if any.
func (s *Service) resolveOnRecovery(ctx context.Context, serviceID string, at time.Time) (*domain.Incident, error) {
	open, err := s.openIncident(ctx, serviceID)
	if err != nil || open == nil {
		return nil, err
	}

	resolved, err := s.resolve(ctx, open, MessageRestored, at)
	if err != nil || !resolved {
		return nil, err
	}

	incident, err := s.repo.GetIncident(ctx, open.ID)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("reload of resolved incident failed", "incident_id", open.ID, "error", err)
		closed := *open
		closed.EndTime = &at
		return &closed, nil
	}
	return incident, nil
}

// resolve closes an incident and appends message. It reports false if it was already closed.
func (s *Service) resolve(ctx context.Context, incident *domain.Incident, message string, at time.Time) (bool, error) {
	at, err := s.nextUpdateTime(ctx, incident, at)
	if err != nil {
		return false, err
	}

	update := &domain.IncidentUpdate{IncidentID: incident.ID, Message: message, Timestamp: at}

	resolved, err := s.repo.ResolveIncident(ctx, incident.ID, at, update)
	if err != nil {
		return false, fmt.Errorf("resolve incident: %w", err)
	}
	return resolved, nil
}

// nextUpdateTime keeps an incident's timeline non-decreasing and never before its start.
func (s *Service) nextUpdateTime(ctx context.Context, incident *domain.Incident, at time.Time) (time.Time, error) {
	if at.Before(incident.StartTime) {
		at = incident.StartTime
	}

	updates, err := s.repo.ListIncidentUpdates(ctx, incident.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("list incident updates: %w", err)
	}
	if n := len(updates); n > 0 && at.Before(updates[n-1].Timestamp) {
		at = updates[n-1].Timestamp
	}
	return at, nil
}

// openIncident returns the open incident of a service or nil.
func (s *Service) openIncident(ctx context.Context, serviceID string) (*domain.Incident, error) {
	incident, err := s.repo.GetOpenIncident(ctx, serviceID)
	if errors.Is(err, ErrIncidentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open incident: %w", err)
	}
	return incident, nil
}

// OpenIncidentInput holds data for declaring an incident manually.
type OpenIncidentInput struct {
	ServiceID string
	Title     string
	Reason    string
	Severity  domain.Severity
}

// OpenIncident declares an incident for a service regardless of its current status.
func (s *Service) OpenIncident(ctx context.Context, input OpenIncidentInput) (*domain.Incident, error) {
	title := strings.TrimSpace(input.Title)
	reason := strings.TrimSpace(input.Reason)

	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	severity := input.Severity
	if severity == "" {
		severity = domain.SeverityCritical
	}
	if !severity.IsValid() {
		return nil, fmt.Errorf("%w: invalid severity %q", ErrValidation, severity)
	}

	if _, err := s.services.Get(input.ServiceID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(input.ServiceID)
	defer unlock()

	now := s.history.Now()
	incident := &domain.Incident{
		ServiceID: input.ServiceID,
		Title:     title,
		Reason:    reason,
		Severity:  severity,
		StartTime: now,
	}
	update := &domain.IncidentUpdate{Message: messageDeclared + title, Timestamp: now}

	if err := s.repo.CreateIncident(ctx, incident, update); err != nil {
		if errors.Is(err, ErrIncidentAlreadyOpen) {
			return nil, err
		}
		return nil, fmt.Errorf("create incident: %w", err)
	}

	s.afterChange(ctx, ActionOpened, incident)

	return incident, nil
}

// PostUpdate appends a message to an incident's timeline.
func (s *Service) PostUpdate(ctx context.Context, incidentID, message string) (*domain.IncidentUpdate, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}

	incident, err := s.lockIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	defer incident.unlock()

	at, err := s.nextUpdateTime(ctx, incident.Incident, s.history.Now())
	if err != nil {
		return nil, err
	}

	update := &domain.IncidentUpdate{IncidentID: incidentID, Message: message, Timestamp: at}
	if err := s.repo.CreateIncidentUpdate(ctx, update); err != nil {
		return nil, fmt.Errorf("create incident update: %w", err)
	}

	metrics.IncidentTransitions.WithLabelValues("updated").Inc()
	s.invalidate(ctx)

	return update, nil
}

// ResolveIncident closes an incident. Resolving an already resolved incident is a no-op
// that returns the incident unchanged.
func (s *Service) ResolveIncident(ctx context.Context, incidentID string) (*domain.Incident, error) {
	incident, err := s.lockIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	defer incident.unlock()

	if !incident.IsOpen() {
		return incident.Incident, nil
	}

	resolved, err := s.resolve(ctx, incident.Incident, MessageResolved, s.history.Now())
	if err != nil {
		return nil, err
	}

	current, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}

	if resolved {
		s.afterChange(ctx, ActionResolved, current)
	}

	return current, nil
}

type lockedIncident struct {
	*domain.Incident
	unlock func()
}

// lockIncident takes the lock of the incident's service and returns a fresh copy read under it.
func (s *Service) lockIncident(ctx context.Context, incidentID string) (*lockedIncident, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(incident.ServiceID)

	incident, err = s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		unlock()
		return nil, err
	}

	return &lockedIncident{Incident: incident, unlock: unlock}, nil
}

// GetIncident returns an incident by id.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// GetOpenIncident returns the open incident of a service, or nil.
func (s *Service) GetOpenIncident(ctx context.Context, serviceID string) (*domain.Incident, error) {
	return s.openIncident(ctx, serviceID)
}

// ListUpdates returns an incident's timeline, oldest first.
func (s *Service) ListUpdates(ctx context.Context, incidentID string) ([]*domain.IncidentUpdate, error) {
	if _, err := s.repo.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}

	updates, err := s.repo.ListIncidentUpdates(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	if updates == nil {
		updates = make([]*domain.IncidentUpdate, 0)
	}
	return updates, nil
}

// ListIncidents returns incidents newest first.
func (s *Service) ListIncidents(ctx context.Context, filter IncidentFilter) ([]*domain.Incident, error) {
	list, err := s.repo.ListIncidents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	if list == nil {
		list = make([]*domain.Incident, 0)
	}
	return list, nil
}

func (s *Service) afterChange(ctx context.Context, action Action, incident *domain.Incident) {
	metrics.IncidentTransitions.WithLabelValues(string(action)).Inc()

	slog.Info("incident "+string(action),
		"incident_id", incident.ID,
		"service_id", incident.ServiceID,
		"severity", incident.Severity,
	)

	if s.notifier != nil {
		switch action {
		case ActionOpened:
			s.notifier.IncidentOpened(ctx, incident)
		case ActionResolved:
			s.notifier.IncidentResolved(ctx, incident)
		}
	}

	s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}
