package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes used as the "outcome" label.
const (
	outcomeDelivered    = "delivered"
	outcomeRenderFailed = "render_failed"
	outcomeSendFailed   = "send_failed"
)

var (
	queued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "statuswatch",
		Subsystem: "notifications",
		Name:      "queued",
		Help:      "Incident notifications waiting for a worker",
	})

	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statuswatch",
		Subsystem: "notifications",
		Name:      "deliveries_total",
		Help:      "Incident notifications handed to a channel, by message type and outcome",
	}, []string{"channel", "message_type", "outcome"})

	deliveryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "statuswatch",
		Subsystem: "notifications",
		Name:      "webhook_seconds",
		Help:      "Latency of successful webhook calls",
		Buckets:   prometheus.ExponentialBuckets(0.025, 2, 9),
	}, []string{"channel"})

	dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statuswatch",
		Subsystem: "notifications",
		Name:      "dropped_total",
		Help:      "Incident notifications discarded before reaching a worker",
	}, []string{"reason"})
)

func observeDelivery(channel string, msgType MessageType, outcome string, took time.Duration) {
	deliveries.WithLabelValues(channel, string(msgType), outcome).Inc()
	if outcome == outcomeDelivered {
		deliveryLatency.WithLabelValues(channel).Observe(took.Seconds())
	}
}
