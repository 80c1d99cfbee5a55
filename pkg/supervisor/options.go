package supervisor

import (
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Option configures the Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(s *Supervisor) {
		if mc != nil {
			s.metrics = mc
		}
	}
}

// WithSpawner sets how worker processes are started.
func WithSpawner(sp Spawner) Option {
	return func(s *Supervisor) {
		if sp != nil {
			s.spawner = sp
		}
	}
}

// WithRand sets the source used to fill the buffer.
func WithRand(r *rand.Rand) Option {
	return func(s *Supervisor) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithClock sets the clock used for start and end timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLivenessCheck replaces the check deciding whether a worker PID still
// runs before Terminate signals it.
func WithLivenessCheck(alive func(pid int) (bool, error)) Option {
	return func(s *Supervisor) {
		if alive != nil {
			s.alive = alive
		}
	}
}
