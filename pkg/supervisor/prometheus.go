package supervisor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector on a private registry.
type PrometheusMetricsCollector struct {
	spawned        *prometheus.CounterVec
	stopped        *prometheus.CounterVec
	lifetime       *prometheus.HistogramVec
	ticks          prometheus.Counter
	tracked        prometheus.Gauge
	teardownErrors *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a collector whose metrics are prefixed
// with namespace, "regionshm" when empty.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "regionshm"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.spawned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_spawned_total",
			Help:      "Total number of worker processes started",
		},
		[]string{"op"},
	)

	pmc.stopped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_stopped_total",
			Help:      "Total number of workers whose end was recorded",
		},
		[]string{"reason"},
	)

	pmc.lifetime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_lifetime_seconds",
			Help:      "Actual time between worker start and recorded end",
			Buckets:   []float64{1, 5, 15, 30, 60, 90, 120, 150, 300},
		},
		[]string{"reason"},
	)

	pmc.ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervisor_ticks_total",
			Help:      "Total number of supervision ticks",
		},
	)

	pmc.tracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_tracked",
			Help:      "Number of workers still tracked by the supervisor",
		},
	)

	pmc.teardownErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardown_errors_total",
			Help:      "Total number of failed teardown steps",
		},
		[]string{"resource"},
	)

	pmc.registry.MustRegister(
		pmc.spawned,
		pmc.stopped,
		pmc.lifetime,
		pmc.ticks,
		pmc.tracked,
		pmc.teardownErrors,
	)

	return pmc
}

// Registry returns the registry holding the collector's metrics.
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// WorkerSpawned records a started worker process.
func (pmc *PrometheusMetricsCollector) WorkerSpawned(op string) {
	pmc.spawned.WithLabelValues(op).Inc()
}

// WorkerStopped records a recorded worker end.
func (pmc *PrometheusMetricsCollector) WorkerStopped(reason string, ran time.Duration) {
	pmc.stopped.WithLabelValues(reason).Inc()
	pmc.lifetime.WithLabelValues(reason).Observe(ran.Seconds())
}

// Tick records one supervision tick.
func (pmc *PrometheusMetricsCollector) Tick() {
	pmc.ticks.Inc()
}

// WorkersTracked records the number of tracked workers.
func (pmc *PrometheusMetricsCollector) WorkersTracked(n int) {
	pmc.tracked.Set(float64(n))
}

// TeardownError records a failed teardown step.
func (pmc *PrometheusMetricsCollector) TeardownError(resource string) {
	pmc.teardownErrors.WithLabelValues(resource).Inc()
}
