// Package notifications delivers incident lifecycle events to chat webhooks.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
)

// Config contains notifier configuration.
type Config struct {
	QueueSize   int
	NumWorkers  int
	SendTimeout time.Duration
	// BaseURL of the public dashboard, used to link incidents. Optional.
	BaseURL string
}

// DefaultConfig returns default notifier configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:   100,
		NumWorkers:  2,
		SendTimeout: 10 * time.Second,
	}
}

// ServiceNameResolver resolves service IDs to names.
type ServiceNameResolver interface {
	GetServiceName(ctx context.Context, serviceID string) (string, error)
}

// Notifier queues incident events and delivers them in the background.
// Enqueueing never blocks: when the queue is full the event is dropped.
type Notifier struct {
	config   Config
	renderer *Renderer
	senders  []Sender
	names    ServiceNameResolver
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Payload
	wg     sync.WaitGroup
}

// NewNotifier creates a new Notifier. Zero config values use DefaultConfig.
func NewNotifier(config Config, renderer *Renderer, names ServiceNameResolver, senders ...Sender) *Notifier {
	defaults := DefaultConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = defaults.NumWorkers
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}

	return &Notifier{
		config:   config,
		renderer: renderer,
		senders:  senders,
		names:    names,
		now:      time.Now,
		queue:    make(chan Payload, config.QueueSize),
	}
}

// IncidentOpened queues an "opened" notification.
func (n *Notifier) IncidentOpened(ctx context.Context, incident *domain.Incident) {
	n.notify(ctx, MessageTypeOpened, incident)
}

// IncidentResolved queues a "resolved" notification.
func (n *Notifier) IncidentResolved(ctx context.Context, incident *domain.Incident) {
	n.notify(ctx, MessageTypeResolved, incident)
}

func (n *Notifier) notify(ctx context.Context, messageType MessageType, incident *domain.Incident) {
	if len(n.senders) == 0 {
		return
	}

	payload := NewPayload(messageType, incident, n.serviceName(ctx, incident.ServiceID), n.incidentURL(incident.ID), n.now().UTC())

	if err := n.enqueue(payload); err != nil {
		reason := "stopped"
		if errors.Is(err, ErrQueueFull) {
			reason = "queue_full"
		}
		dropped.WithLabelValues(reason).Inc()
		slog.Warn("notification dropped",
			"incident_id", incident.ID,
			"message_type", messageType,
			"error", err,
		)
	}
}

func (n *Notifier) enqueue(payload Payload) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrNotifierStopped
	}

	select {
	case n.queue <- payload:
		queued.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

func (n *Notifier) serviceName(ctx context.Context, serviceID string) string {
	if n.names == nil {
		return serviceID
	}
	name, err := n.names.GetServiceName(ctx, serviceID)
	if err != nil {
		return serviceID
	}
	return name
}

func (n *Notifier) incidentURL(incidentID string) string {
	if n.config.BaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/incidents/%s", n.config.BaseURL, incidentID)
}
