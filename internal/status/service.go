// Package status aggregates the public status snapshot served to the dashboard.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opslink/statuswatch/internal/checks"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/incidents"
	"github.com/opslink/statuswatch/internal/pkg/metrics"
)

// Default look-back windows.
const (
	DefaultHistoryWindow  = 90 * 24 * time.Hour
	DefaultIncidentWindow = 30 * 24 * time.Hour
)

// ServiceStatus is one catalog entry in the snapshot.
type ServiceStatus struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Status   domain.Status    `json:"status"`
	Uptime   float64          `json:"uptime"`
	History  []*domain.Check  `json:"history"`
	Incident *domain.Incident `json:"incident"`
}

// Snapshot is the aggregated read model of all services.
type Snapshot struct {
	Services    []ServiceStatus           `json:"services"`
	Incidents   []*domain.Incident        `json:"incidents"`
	Maintenance *domain.MaintenanceWindow `json:"maintenance"`
	LastUpdate  time.Time                 `json:"lastUpdate"`
}

// ServiceLister returns the catalog in display order.
type ServiceLister interface {
	List() []domain.Service
}

// HistoryReader reads check history.
type HistoryReader interface {
	History(ctx context.Context, serviceID string, since time.Time) ([]*domain.Check, error)
	// CurrentStatus is the status of the newest check, down when there is none.
	CurrentStatus(ctx context.Context, serviceID string) (domain.Status, error)
}

// IncidentReader reads incidents.
type IncidentReader interface {
	GetOpenIncident(ctx context.Context, serviceID string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]*domain.Incident, error)
}

// MaintenanceReader reads the active maintenance window.
type MaintenanceReader interface {
	ActiveWindow(ctx context.Context, now time.Time) (*domain.MaintenanceWindow, error)
}

// Cache stores the latest snapshot.
type Cache interface {
	Get(ctx context.Context) (*Snapshot, error)
	Set(ctx context.Context, snapshot *Snapshot) error
	Delete(ctx context.Context) error
}

// ErrCacheMiss is returned by Cache.Get when no snapshot is stored.
var ErrCacheMiss = errors.New("status cache miss")

// Config holds the look-back windows. Zero values use the defaults.
type Config struct {
	HistoryWindow  time.Duration
	IncidentWindow time.Duration
}

// Service builds status snapshots.
type Service struct {
	services    ServiceLister
	history     HistoryReader
	incidents   IncidentReader
	maintenance MaintenanceReader
	cache       Cache
	cfg         Config
}

// NewService creates a new status service. cache may be nil.
func NewService(cfg Config, services ServiceLister, history HistoryReader, incidentReader IncidentReader, maintenanceReader MaintenanceReader, cache Cache) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.IncidentWindow <= 0 {
		cfg.IncidentWindow = DefaultIncidentWindow
	}

	return &Service{
		services:    services,
		history:     history,
		incidents:   incidentReader,
		maintenance: maintenanceReader,
		cache:       cache,
		cfg:         cfg,
	}
}

// GetStatus returns the snapshot at now, from the cache when a fresh one is stored.
func (s *Service) GetStatus(ctx context.Context, now time.Time) (*Snapshot, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx)
		switch {
		case err == nil:
			metrics.StatusCacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		case errors.Is(err, ErrCacheMiss):
			metrics.StatusCacheLookups.WithLabelValues("miss").Inc()
		default:
			metrics.StatusCacheLookups.WithLabelValues("error").Inc()
			slog.Warn("status cache read failed", "error", err)
		}
	}

	snapshot, err := s.Build(ctx, now)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, snapshot); err != nil {
			slog.Warn("status cache write failed", "error", err)
		}
	}

	return snapshot, nil
}

// Build computes a snapshot from storage, bypassing the cache.
func (s *Service) Build(ctx context.Context, now time.Time) (*Snapshot, error) {
	catalog := s.services.List()
	since := now.Add(-s.cfg.HistoryWindow)

	snapshot := &Snapshot{
		Services:   make([]ServiceStatus, 0, len(catalog)),
		LastUpdate: now,
	}

	for _, svc := range catalog {
		history, err := s.history.History(ctx, svc.ID, since)
		if err != nil {
			return nil, fmt.Errorf("history of %s: %w", svc.ID, err)
		}

		open, err := s.incidents.GetOpenIncident(ctx, svc.ID)
		if err != nil {
			return nil, fmt.Errorf("open incident of %s: %w", svc.ID, err)
		}

		// The newest check may be older than the history window.
		current, err := s.history.CurrentStatus(ctx, svc.ID)
		if err != nil {
			return nil, fmt.Errorf("current status of %s: %w", svc.ID, err)
		}

		snapshot.Services = append(snapshot.Services, ServiceStatus{
			ID:       svc.ID,
			Name:     svc.Name,
			Status:   current,
			Uptime:   checks.Uptime(history),
			History:  history,
			Incident: open,
		})
	}

	recent, err := s.incidents.ListIncidents(ctx, incidents.IncidentFilter{Since: now.Add(-s.cfg.IncidentWindow)})
	if err != nil {
		return nil, fmt.Errorf("recent incidents: %w", err)
	}
	snapshot.Incidents = recent

	window, err := s.maintenance.ActiveWindow(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("active maintenance: %w", err)
	}
	snapshot.Maintenance = window

	return snapshot, nil
}

// Invalidate drops the cached snapshot so the next read rebuilds it.
func (s *Service) Invalidate(ctx context.Context) {
	NewCacheInvalidator(s.cache).Invalidate(ctx)
}

// CacheInvalidator drops the cached snapshot. It lets writers invalidate
// the cache without depending on the status service.
type CacheInvalidator struct {
	cache Cache
}

// NewCacheInvalidator creates an invalidator for cache, which may be nil.
func NewCacheInvalidator(cache Cache) *CacheInvalidator {
	return &CacheInvalidator{cache: cache}
}

// Invalidate deletes the cached snapshot. Failures are logged.
func (c *CacheInvalidator) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx); err != nil {
		slog.Warn("status cache invalidation failed", "error", err)
	}
}
