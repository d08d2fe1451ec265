// Package obsmetrics exports the orchestrator's own operational
// metrics in Prometheus format: run outcomes, alert attempts, zombie
// reclaims, pool size, and pending-run depth.
package obsmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ivybound/taskrunner/internal/store"
)

// Exporter registers and updates the orchestrator's Prometheus metrics.
type Exporter struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	alertsTotal      *prometheus.CounterVec
	zombiesReclaimed prometheus.Counter
	workerPoolSize   prometheus.Gauge
	pendingRuns      prometheus.Gauge
}

// DefaultDurationBuckets matches the coarse-grained durations expected
// for shell jobs (seconds to low minutes).
var DefaultDurationBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// New builds an Exporter registered to a fresh registry.
func New() *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskrunner",
			Name:      "runs_total",
			Help:      "Total number of runs that executed through the supervisor and reached a terminal state, by status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskrunner",
			Name:      "run_duration_seconds",
			Help:      "Run wall-clock duration from claim to terminal state.",
			Buckets:   DefaultDurationBuckets,
		}, []string{"task"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskrunner",
			Name:      "alerts_total",
			Help:      "Total alerts raised, by kind and suppression state.",
		}, []string{"kind", "suppressed"}),
		zombiesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskrunner",
			Name:      "zombie_runs_reclaimed_total",
			Help:      "Total RUNNING runs auto-failed by the zombie sweep.",
		}),
		workerPoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskrunner",
			Name:      "worker_pool_size",
			Help:      "Configured MAX_WORKERS concurrency limit.",
		}),
		pendingRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskrunner",
			Name:      "pending_runs",
			Help:      "PENDING runs seen by the most recent dispatcher poll (capped at MAX_WORKERS).",
		}),
	}

	registry.MustRegister(e.runsTotal, e.runDuration, e.alertsTotal, e.zombiesReclaimed, e.workerPoolSize, e.pendingRuns)
	return e
}

// Handler returns the HTTP handler the status surface mounts at /metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a terminal run's status and duration.
func (e *Exporter) ObserveRun(taskName string, status store.RunStatus, duration float64) {
	e.runsTotal.WithLabelValues(string(status)).Inc()
	e.runDuration.WithLabelValues(taskName).Observe(duration)
}

// ObserveAlert records one alert attempt.
func (e *Exporter) ObserveAlert(kind store.AlertKind, suppressed bool) {
	e.alertsTotal.WithLabelValues(string(kind), boolLabel(suppressed)).Inc()
}

// AddZombiesReclaimed increments the zombie-sweep counter.
func (e *Exporter) AddZombiesReclaimed(n int64) {
	if n > 0 {
		e.zombiesReclaimed.Add(float64(n))
	}
}

// SetWorkerPoolSize records the configured concurrency limit.
func (e *Exporter) SetWorkerPoolSize(n int) { e.workerPoolSize.Set(float64(n)) }

// SetPendingRuns records how many PENDING runs the most recent
// dispatcher poll returned; the poll is capped at MAX_WORKERS.
func (e *Exporter) SetPendingRuns(n int) { e.pendingRuns.Set(float64(n)) }

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
