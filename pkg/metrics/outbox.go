package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish outcomes.
const (
	OutboxPublished = "published"
	OutboxRetry     = "retry"
	OutboxParked    = "parked"
)

// OutboxMetrics tracks the outbox publisher. A growing parked count means rows
// need manual attention.
type OutboxMetrics struct {
	events *prometheus.CounterVec
	batch  prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Time to publish and mark one non-empty batch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.events, m.batch)
	return m
}

func (m *OutboxMetrics) IncEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(labelOrUnknown(eventType), labelOrUnknown(outcome)).Inc()
}

func (m *OutboxMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(d.Seconds())
}
