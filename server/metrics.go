package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stokaro/schemapush/connector"
)

// Push outcomes reported in schemapush_pushes_total.
const (
	OutcomeApplied       = "applied"
	OutcomeBlocked       = "blocked"
	OutcomePlanningError = "planning_error"
	OutcomeExecError     = "exec_error"
)

// Metrics holds the service metrics in a registry of its own, so several
// servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	Pushes       *prometheus.CounterVec
	PushDuration *prometheus.HistogramVec
	StepsApplied *prometheus.CounterVec
}

// NewMetrics creates and registers the service metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemapush",
			Name:      "pushes_total",
			Help:      "Total number of pushes by outcome",
		}, []string{"dialect", "outcome"}),
		PushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schemapush",
			Name:      "push_duration_seconds",
			Help:      "Duration of pushes in seconds, including waiting for the database lock",
			Buckets:   prometheus.DefBuckets,
		}, []string{"dialect"}),
		StepsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemapush",
			Name:      "steps_applied_total",
			Help:      "Total number of migration steps applied",
		}, []string{"dialect"}),
	}
	reg.MustRegister(m.Pushes, m.PushDuration, m.StepsApplied)
	return m
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPush records the outcome of one push.
func (m *Metrics) RecordPush(d connector.Dialect, outcome string, executedSteps int, duration time.Duration) {
	m.Pushes.WithLabelValues(string(d), outcome).Inc()
	m.PushDuration.WithLabelValues(string(d)).Observe(duration.Seconds())
	if executedSteps > 0 {
		m.StepsApplied.WithLabelValues(string(d)).Add(float64(executedSteps))
	}
}
