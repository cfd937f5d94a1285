package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWebhookMetricsCountsOutcomes(t *testing.T) {
	m := NewWebhookMetrics(prometheus.NewRegistry())
	m.Observe("applied", 20*time.Millisecond)
	m.Observe("applied", 10*time.Millisecond)
	m.Observe("duplicate", time.Millisecond)
	m.Observe("", time.Millisecond)

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("applied")); got != 2 {
		t.Fatalf("expected applied=2, got %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected unknown=1, got %v", got)
	}
	if got := testutil.CollectAndCount(m.latency, "lectern_webhooks_handle_duration_seconds"); got != 3 {
		t.Fatalf("expected three latency series, got %d", got)
	}
}

func TestGatewayMetricsObservesByOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)
	m.Observe("fetch_intent", "GATEWAY_TIMEOUT", 3*time.Second)
	m.Observe("create_intent", "ok", 40*time.Millisecond)

	got, err := testutil.GatherAndCount(reg, "lectern_gateway_request_duration_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected a series per operation, got %d", got)
	}
}
