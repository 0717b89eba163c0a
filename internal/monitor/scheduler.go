package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/incidents"
	"github.com/opslink/statuswatch/internal/pkg/ctxlog"
	"github.com/opslink/statuswatch/internal/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Pipeline turns a classified status into a recorded check and incident transition.
type Pipeline interface {
	ProcessCheck(ctx context.Context, serviceID string, status domain.Status, reason string) (*domain.Check, *incidents.Transition, error)
}

// Pruner deletes checks older than a retention period.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// SchedulerConfig contains poll loop settings.
type SchedulerConfig struct {
	Interval      time.Duration
	Concurrency   int
	Retention     time.Duration
	PruneInterval time.Duration
}

// Scheduler runs one poll tick per interval across all services.
type Scheduler struct {
	config   SchedulerConfig
	services []domain.Service
	poller   Poller
	pipeline Pipeline
	pruner   Pruner
}

// NewScheduler creates a scheduler. pruner may be nil when retention is disabled.
func NewScheduler(cfg SchedulerConfig, services []domain.Service, poller Poller, pipeline Pipeline, pruner Pruner) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = len(services)
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = 24 * time.Hour
	}

	return &Scheduler{
		config:   cfg,
		services: services,
		poller:   poller,
		pipeline: pipeline,
		pruner:   pruner,
	}
}

// Run ticks immediately and then every interval until ctx is cancelled.
// Ticks never overlap: a slow tick delays the next one.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("monitor started",
		"services", len(s.services),
		"interval", s.config.Interval,
		"concurrency", s.config.Concurrency,
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	var pruneC <-chan time.Time
	if s.pruner != nil && s.config.Retention > 0 {
		pruneTicker := time.NewTicker(s.config.PruneInterval)
		defer pruneTicker.Stop()
		pruneC = pruneTicker.C
		s.prune(ctx)
	}

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		case <-pruneC:
			s.prune(ctx)
		}
	}
}

// Tick checks every service once. Services run concurrently up to the configured limit;
// a failing service is logged and does not affect the others.
func (s *Scheduler) Tick(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(max(s.config.Concurrency, 1))

	for _, svc := range s.services {
		g.Go(func() error {
			s.checkService(ctx, svc)
			return nil
		})
	}

	_ = g.Wait()
}

func (s *Scheduler) checkService(ctx context.Context, svc domain.Service) {
	ctx = ctxlog.With(ctx, "service_id", svc.ID)
	logger := ctxlog.FromContext(ctx)

	outcome := s.poller.Poll(ctx, svc)
	if outcome.Failed {
		logger.Warn("poll failed", "error", outcome.Err)
	}

	status, reason := Classify(outcome)

	check, transition, err := s.pipeline.ProcessCheck(ctx, svc.ID, status, reason)
	if err != nil {
		metrics.CycleFailures.WithLabelValues(svc.ID).Inc()
		logger.Error("failed to process check", "status", status, "error", err)
		return
	}

	metrics.ChecksTotal.WithLabelValues(svc.ID, string(check.Status)).Inc()

	if transition != nil {
		logger.Info("service status changed",
			"action", transition.Action,
			"incident_id", transition.Incident.ID,
			"status", status,
		)
	} else {
		logger.Debug("check recorded", "status", status)
	}
}

func (s *Scheduler) prune(ctx context.Context) {
	deleted, err := s.pruner.Prune(ctx, s.config.Retention)
	if err != nil {
		slog.Error("failed to prune checks", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("pruned old checks", "deleted", deleted, "retention", s.config.Retention)
	}
}
