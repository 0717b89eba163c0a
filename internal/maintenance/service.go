// Package maintenance tracks admin-declared maintenance windows.
package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
)

// ServiceResolver looks up catalog services.
type ServiceResolver interface {
	Get(id string) (domain.Service, error)
}

// Invalidator is told when the set of windows has changed.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service provides business logic for maintenance windows.
type Service struct {
	repo        Repository
	services    ServiceResolver
	invalidator Invalidator
	now         func() time.Time
}

// NewService creates a new maintenance service.
func NewService(repo Repository, services ServiceResolver) *Service {
	return &Service{repo: repo, services: services, now: time.Now}
}

// SetInvalidator registers a reader cache to invalidate after a window is scheduled.
func (s *Service) SetInvalidator(i Invalidator) {
	s.invalidator = i
}

// ScheduleInput holds data for scheduling a window. An empty ServiceID schedules a global window.
type ScheduleInput struct {
	ServiceID string
	StartTime time.Time
	EndTime   time.Time
	Reason    string
}

// Schedule stores a new maintenance window.
func (s *Service) Schedule(ctx context.Context, input ScheduleInput) (*domain.MaintenanceWindow, error) {
	reason := strings.TrimSpace(input.Reason)
	serviceID := strings.TrimSpace(input.ServiceID)

	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	if input.StartTime.IsZero() || input.EndTime.IsZero() {
		return nil, fmt.Errorf("%w: start_time and end_time are required", ErrValidation)
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	}
	if serviceID != "" {
		if _, err := s.services.Get(serviceID); err != nil {
			return nil, err
		}
	}

	window := &domain.MaintenanceWindow{
		ServiceID: serviceID,
		StartTime: input.StartTime.UTC(),
		EndTime:   input.EndTime.UTC(),
		Reason:    reason,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateWindow(ctx, window); err != nil {
		return nil, fmt.Errorf("create maintenance window: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}

	return window, nil
}

// ActiveWindow returns the most recently created window covering now, or nil.
func (s *Service) ActiveWindow(ctx context.Context, now time.Time) (*domain.MaintenanceWindow, error) {
	return s.first(ctx, WindowFilter{ActiveAt: now, Limit: 1})
}

// ActiveWindowFor is ActiveWindow restricted to windows for serviceID or global windows.
func (s *Service) ActiveWindowFor(ctx context.Context, serviceID string, now time.Time) (*domain.MaintenanceWindow, error) {
	return s.first(ctx, WindowFilter{ActiveAt: now, ServiceID: serviceID, Limit: 1})
}

// Upcoming returns windows that have not ended yet.
func (s *Service) Upcoming(ctx context.Context, now time.Time) ([]*domain.MaintenanceWindow, error) {
	windows, err := s.repo.ListWindows(ctx, WindowFilter{EndsAfter: now})
	if err != nil {
		return nil, fmt.Errorf("list maintenance windows: %w", err)
	}
	if windows == nil {
		windows = make([]*domain.MaintenanceWindow, 0)
	}
	return windows, nil
}

func (s *Service) first(ctx context.Context, filter WindowFilter) (*domain.MaintenanceWindow, error) {
	windows, err := s.repo.ListWindows(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list maintenance windows: %w", err)
	}
	if len(windows) == 0 {
		return nil, nil
	}
	return windows[0], nil
}
