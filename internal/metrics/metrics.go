package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the notification scheduler.
type Metrics struct {
	// Dispatch counters
	DispatchesTotal   *prometheus.CounterVec
	EnrollmentsTotal  *prometheus.CounterVec

	// Queue metrics
	ClaimsTotal     prometheus.Counter
	ReclaimedTotal  prometheus.Counter
	FinalizedTotal  *prometheus.CounterVec
	QueuePending    prometheus.Gauge

	// Worker metrics
	TickDurationSeconds prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesflow_dispatches_total",
				Help: "Total dispatch attempts by trigger type and outcome",
			},
			[]string{"trigger_type", "status"},
		),
		EnrollmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesflow_enrollments_total",
				Help: "Total repeat-schedule enrollment attempts by result",
			},
			[]string{"result"},
		),
		ClaimsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "salesflow_queue_claims_total",
				Help: "Total queue entries claimed by the dispatch worker",
			},
		),
		ReclaimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "salesflow_queue_reclaimed_total",
				Help: "Total abandoned processing entries reclaimed past the grace period",
			},
		),
		FinalizedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesflow_queue_finalized_total",
				Help: "Total queue entries finalized by terminal status",
			},
			[]string{"status"},
		),
		QueuePending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "salesflow_queue_pending",
				Help: "Number of pending automation queue entries",
			},
		),
		TickDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "salesflow_worker_tick_duration_seconds",
				Help:    "Duration of one dispatch worker tick",
				Buckets: prometheus.DefBuckets,
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.DispatchesTotal,
		m.EnrollmentsTotal,
		m.ClaimsTotal,
		m.ReclaimedTotal,
		m.FinalizedTotal,
		m.QueuePending,
		m.TickDurationSeconds,
	)

	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
