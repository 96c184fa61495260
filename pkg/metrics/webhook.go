package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tipjar"

// WebhookMetrics tracks Stripe webhook intake and reconciliation.
type WebhookMetrics struct {
	received  *prometheus.CounterVec
	processed *prometheus.CounterVec
	latency   prometheus.Histogram
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stripe_webhooks_received_total",
		Help:      "Stripe webhook deliveries by event type and intake outcome.",
	}, []string{"event_type", "outcome"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stripe_webhooks_processed_total",
		Help:      "Reconciliation attempts by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stripe_webhook_reconcile_seconds",
		Help:      "Time spent reconciling a single webhook event.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(received, processed, latency)
	return &WebhookMetrics{received: received, processed: processed, latency: latency}
}

// IncReceived counts a delivery. Outcome is one of queued, duplicate, ignored or rejected.
func (m *WebhookMetrics) IncReceived(eventType, outcome string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(labelOrUnknown(eventType), labelOrUnknown(outcome)).Inc()
}

// IncProcessed counts a reconciliation attempt. Outcome is one of processed, retry or failed.
func (m *WebhookMetrics) IncProcessed(outcome string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

func (m *WebhookMetrics) ObserveReconcile(d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}

// DonationMetrics counts checkout sessions created and donations settled.
type DonationMetrics struct {
	checkouts *prometheus.CounterVec
}

func NewDonationMetrics(reg prometheus.Registerer) *DonationMetrics {
	if reg == nil {
		return &DonationMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_sessions_total",
		Help:      "Checkout session initiations by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(checkouts)
	return &DonationMetrics{checkouts: checkouts}
}

func (m *DonationMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

func labelOrUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
