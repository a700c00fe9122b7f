// Package metrics exposes Prometheus collectors for simulation activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the typed facade the API layer updates. Each instance owns its
// registry, so independent instances never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	activeRuns      prometheus.Gauge
	iterationsTotal prometheus.Counter
	batchesTotal    prometheus.Counter
	runDuration     prometheus.Histogram
}

// New creates the collectors and registers them together with the standard
// Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "simulation_runs_total",
			Help: "Completed simulation runs by terminal status.",
		}, []string{"status"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "simulation_active_runs",
			Help: "Simulation runs currently executing.",
		}),
		iterationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "simulation_iterations_total",
			Help: "Monte Carlo iterations completed across all runs.",
		}),
		batchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "simulation_batches_total",
			Help: "Simulation batches completed across all runs.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulation_run_duration_seconds",
			Help:    "Wall-clock duration of completed simulation runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunStarted marks one run as active
func (m *Metrics) RunStarted() {
	m.activeRuns.Inc()
}

// RunFinished records a run's terminal status, duration and iteration count
func (m *Metrics) RunFinished(status string, elapsed time.Duration, iterations int) {
	m.activeRuns.Dec()
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	m.iterationsTotal.Add(float64(iterations))
}

// BatchCompleted counts one finished batch
func (m *Metrics) BatchCompleted() {
	m.batchesTotal.Inc()
}
