// Package checks records service status observations and serves their history.
package checks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
)

// Service provides business logic over the check history.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new checks service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NextTimestamp returns now, or the latest check's timestamp if the clock is behind it.
// Per-service check timestamps stay non-decreasing even if the wall clock steps back.
func NextTimestamp(now time.Time, latest *domain.Check) time.Time {
	if latest != nil && now.Before(latest.Timestamp) {
		return latest.Timestamp
	}
	return now
}

// Now returns the service clock in UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// Record stores a check stamped with the current time.
// Callers that record concurrently for the same service must serialize.
func (s *Service) Record(ctx context.Context, serviceID string, status domain.Status, reason string, incidentID *string) (*domain.Check, error) {
	latest, err := s.Latest(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return s.RecordAt(ctx, NextTimestamp(s.Now(), latest), serviceID, status, reason, incidentID)
}

// RecordAt stores a check with an explicit timestamp. An empty reason is stored as null.
func (s *Service) RecordAt(ctx context.Context, at time.Time, serviceID string, status domain.Status, reason string, incidentID *string) (*domain.Check, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("record check: invalid status %q", status)
	}

	check := &domain.Check{
		ServiceID:  serviceID,
		Status:     status,
		Timestamp:  at,
		IncidentID: incidentID,
	}
	if reason != "" {
		check.Reason = &reason
	}

	if err := s.repo.CreateCheck(ctx, check); err != nil {
		return nil, fmt.Errorf("record check: %w", err)
	}
	return check, nil
}

// Latest returns the most recent check of a service, or nil when there is none.
func (s *Service) Latest(ctx context.Context, serviceID string) (*domain.Check, error) {
	check, err := s.repo.GetLatestCheck(ctx, serviceID)
	if errors.Is(err, ErrNoChecks) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest check: %w", err)
	}
	return check, nil
}

// CurrentStatus returns the latest status of a service. A service that was never checked is down.
func (s *Service) CurrentStatus(ctx context.Context, serviceID string) (domain.Status, error) {
	latest, err := s.Latest(ctx, serviceID)
	if err != nil {
		return "", err
	}
	if latest == nil {
		return domain.StatusDown, nil
	}
	return latest.Status, nil
}

// History returns checks of a service since the given time, oldest first. Never nil.
func (s *Service) History(ctx context.Context, serviceID string, since time.Time) ([]*domain.Check, error) {
	history, err := s.repo.ListChecks(ctx, serviceID, since)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	if history == nil {
		history = make([]*domain.Check, 0)
	}
	return history, nil
}

// Prune deletes checks older than retention.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	deleted, err := s.repo.DeleteChecksBefore(ctx, s.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("prune checks: %w", err)
	}
	return deleted, nil
}

// Uptime returns the percentage of up checks, rounded to two decimals. No checks yields 0.
func Uptime(history []*domain.Check) float64 {
	if len(history) == 0 {
		return 0
	}

	up := 0
	for _, c := range history {
		if c.Status == domain.StatusUp {
			up++
		}
	}

	return math.Round(float64(up)/float64(len(history))*10000) / 100
}
