package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

// Metrics tracks deployment activity for the /metrics endpoint.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	outcomesTotal *prometheus.CounterVec
	runDuration   prometheus.Histogram
}

// NewMetrics creates and registers the deployment metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snowdeck",
			Subsystem: "deploy",
			Name:      "runs_total",
			Help:      "Count of orchestrator runs by batch status",
		}, []string{"status"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snowdeck",
			Subsystem: "deploy",
			Name:      "outcomes_total",
			Help:      "Count of per-application outcomes by status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "snowdeck",
			Subsystem: "deploy",
			Name:      "run_duration_seconds",
			Help:      "Duration distribution of orchestrator runs",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}

	m.registry.MustRegister(m.runsTotal, m.outcomesTotal, m.runDuration)
	return m
}

// Registry exposes the underlying registry for the metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(report deploy.BatchReport) {
	m.runsTotal.WithLabelValues(string(report.Status)).Inc()
	m.runDuration.Observe(report.Duration.Seconds())
	for _, o := range report.Outcomes {
		m.outcomesTotal.WithLabelValues(string(o.Status)).Inc()
	}
}
