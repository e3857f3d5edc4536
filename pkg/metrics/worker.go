package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Batch outcomes reported by the background workers.
const (
	BatchOK    = "ok"
	BatchIdle  = "idle"
	BatchError = "error"
)

// WorkerMetrics counts batches (or messages) handled by the outbox publisher
// and the analytics consumer, labelled by worker and outcome.
type WorkerMetrics struct {
	batches *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return nil
	}
	m := &WorkerMetrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_batches_total",
			Help: "Worker batches by outcome (ok, idle, error).",
		}, []string{"worker", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_batch_duration_seconds",
			Help:    "Time spent on one worker batch.",
			Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"worker"}),
	}
	reg.MustRegister(m.batches, m.latency)
	return m
}

// ObserveBatch records one batch. A nil receiver is a no-op so workers can
// run without a registry.
func (m *WorkerMetrics) ObserveBatch(worker, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	worker = normalizeLabel(worker)
	m.batches.WithLabelValues(worker, normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(worker).Observe(took.Seconds())
}
