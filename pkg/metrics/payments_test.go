package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestGatewayMetricsLabelsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)
	m.Observe("Stripe", "create_payment", "success", 120*time.Millisecond)
	m.Observe("stripe", "create_payment", "timeout", 15*time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "payment_gateway_requests_total", "outcome", "timeout"); err != nil {
		t.Fatalf("fetch timeout: %v", err)
	} else if got != 1 {
		t.Fatalf("expected timeout=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "payment_gateway_request_duration_seconds", "gateway", "stripe"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got < 15 {
		t.Fatalf("expected both calls under the lower-cased gateway label, got %f", got)
	}
}

func TestTransitionMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTransitionMetrics(reg)
	m.IncTransition("initiated", "completed")
	m.IncTransition("initiated", "completed")
	m.IncIgnored("webhook", "illegal_transition")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "payment_transitions_total", "to", "completed"); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 2 {
		t.Fatalf("expected transitions=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "payment_transitions_ignored_total", "reason", "illegal_transition"); err != nil {
		t.Fatalf("fetch ignored: %v", err)
	} else if got != 1 {
		t.Fatalf("expected ignored=1, got %f", got)
	}
}

func TestEmptyLabelsBecomeUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewGatewayMetrics(reg).Observe("", "", "", time.Millisecond)
	NewTransitionMetrics(reg).IncIgnored("", "")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "payment_gateway_requests_total", "outcome", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected one call under outcome=unknown, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "payment_transitions_ignored_total", "reason", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected one ignored update under reason=unknown, got %f (%v)", got, err)
	}
}
