package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics tracks gateway webhook handling.
type WebhookMetrics struct {
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewWebhookMetrics registers webhook metrics. A nil registerer yields a no-op recorder.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhooks",
		Name:      "events_total",
		Help:      "Gateway webhook events by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "webhooks",
		Name:      "handle_duration_seconds",
		Help:      "Time spent handling one gateway webhook.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"outcome"})
	reg.MustRegister(outcomes, latency)
	return &WebhookMetrics{outcomes: outcomes, latency: latency}
}

// Observe records one handled event.
func (w *WebhookMetrics) Observe(outcome string, elapsed time.Duration) {
	if w == nil || w.outcomes == nil {
		return
	}
	label := normalizeLabel(outcome)
	w.outcomes.WithLabelValues(label).Inc()
	w.latency.WithLabelValues(label).Observe(elapsed.Seconds())
}

// GatewayMetrics tracks outbound calls to the payment gateway.
type GatewayMetrics struct {
	calls *prometheus.HistogramVec
}

// NewGatewayMetrics registers gateway call metrics. A nil registerer yields a no-op recorder.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	calls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Payment gateway call latency by operation and result.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "result"})
	reg.MustRegister(calls)
	return &GatewayMetrics{calls: calls}
}

// Observe records a gateway call; result is "ok" or an error code.
func (g *GatewayMetrics) Observe(operation, result string, elapsed time.Duration) {
	if g == nil || g.calls == nil {
		return
	}
	g.calls.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Observe(elapsed.Seconds())
}
