package supervisor

import (
	"time"
)

// MetricsCollector receives supervisor events.
type MetricsCollector interface {
	// WorkerSpawned records a started worker process.
	WorkerSpawned(op string)

	// WorkerStopped records a worker whose end was recorded, with the time it ran.
	WorkerStopped(reason string, ran time.Duration)

	// Tick records one supervision tick.
	Tick()

	// WorkersTracked records the number of workers still tracked.
	WorkersTracked(n int)

	// TeardownError records a failed teardown step for a resource.
	TeardownError(resource string)
}

type noopMetricsCollector struct{}

func (n *noopMetricsCollector) WorkerSpawned(op string)                        {}
func (n *noopMetricsCollector) WorkerStopped(reason string, ran time.Duration) {}
func (n *noopMetricsCollector) Tick()                                          {}
func (n *noopMetricsCollector) WorkersTracked(int)                             {}
func (n *noopMetricsCollector) TeardownError(resource string)                  {}

// NewNoopMetricsCollector creates a no-op metrics collector.
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
