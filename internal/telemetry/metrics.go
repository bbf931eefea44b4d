// Package telemetry holds Prometheus metrics for dispatch observability.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dispatch pipeline collectors.
type Metrics struct {
	// DispatchedTotal counts terminal outcomes, labeled by status and
	// failure reason ("" on success).
	DispatchedTotal *prometheus.CounterVec

	// DispatchDuration observes end-to-end dispatch time per job.
	DispatchDuration prometheus.Histogram

	// QueueDepth tracks jobs waiting in the dispatch queue.
	QueueDepth prometheus.Gauge
}

// NewMetrics creates and registers dispatch metrics on the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests use
// a fresh registry to avoid duplicate registration.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "muninn"
	}
	factory := promauto.With(reg)

	return &Metrics{
		DispatchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emails_dispatched_total",
				Help:      "Total number of dispatched email jobs by terminal status",
			},
			[]string{"status", "reason"},
		),
		DispatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "End-to-end dispatch duration per email job",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatch_queue_depth",
				Help:      "Number of email jobs waiting in the dispatch queue",
			},
		),
	}
}
