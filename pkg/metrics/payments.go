package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks latency and outcomes of payment gateway calls.
type GatewayMetrics struct {
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
}

// NewGatewayMetrics registers the gateway metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "operation"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_requests_total",
		Help: "Payment gateway calls by outcome (success, declined, error, timeout).",
	}, []string{"gateway", "operation", "outcome"})
	reg.MustRegister(duration, calls)
	return &GatewayMetrics{duration: duration, calls: calls}
}

// Observe records one gateway call.
func (g *GatewayMetrics) Observe(gateway, operation, outcome string, elapsed time.Duration) {
	if g == nil || g.duration == nil || g.calls == nil {
		return
	}
	gateway = normalizeLabel(strings.ToLower(gateway))
	operation = normalizeLabel(operation)
	g.duration.WithLabelValues(gateway, operation).Observe(elapsed.Seconds())
	g.calls.WithLabelValues(gateway, operation, normalizeLabel(outcome)).Inc()
}

// TransitionMetrics counts applied payment status transitions.
type TransitionMetrics struct {
	transitions *prometheus.CounterVec
	ignored     *prometheus.CounterVec
}

// NewTransitionMetrics registers the transition counters on the provided registerer.
func NewTransitionMetrics(reg prometheus.Registerer) *TransitionMetrics {
	if reg == nil {
		return &TransitionMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transitions_total",
		Help: "Payment status transitions applied to orders.",
	}, []string{"from", "to"})
	ignored := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transitions_ignored_total",
		Help: "Gateway status updates dropped as duplicate, stale or illegal.",
	}, []string{"source", "reason"})
	reg.MustRegister(transitions, ignored)
	return &TransitionMetrics{transitions: transitions, ignored: ignored}
}

// IncTransition counts a committed from→to transition.
func (m *TransitionMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncIgnored counts an update that did not produce a transition.
func (m *TransitionMetrics) IncIgnored(source, reason string) {
	if m == nil || m.ignored == nil {
		return
	}
	m.ignored.WithLabelValues(normalizeLabel(source), normalizeLabel(reason)).Inc()
}

// normalizeLabel keeps empty label values from producing blank series.
func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
