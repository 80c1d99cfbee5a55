package worker

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid worker config")

// End reasons recorded by the supervisor.
const (
	EndExpired    = "expired"
	EndExited     = "exited"
	EndTerminated = "terminated"
)

// Config describes one worker. Everything except PID and the timestamps is
// fixed before the worker starts.
type Config struct {
	// Index identifies the worker within the fleet.
	Index int
	Op    Op
	// Cadence is the rest between two cycles over the regions.
	Cadence time.Duration
	// Pause is the rest after each region's critical section.
	Pause time.Duration
	// Lifetime bounds the sum of cadence rests the worker performs.
	Lifetime time.Duration
	// Regions lists the region indices the worker visits, in order.
	Regions []int

	PID       int
	Started   time.Time
	Ended     time.Time
	EndReason string
}

// Validate checks the fixed part of the config. Region indices are not
// checked; indices outside the buffer are skipped at run time.
func (c Config) Validate() error {
	switch {
	case !c.Op.Valid():
		return fmt.Errorf("%w: worker %d: %v", ErrInvalidConfig, c.Index, ErrUnknownOp)
	case c.Cadence <= 0:
		return fmt.Errorf("%w: worker %d: cadence must be positive", ErrInvalidConfig, c.Index)
	case c.Pause < 0:
		return fmt.Errorf("%w: worker %d: pause must not be negative", ErrInvalidConfig, c.Index)
	case c.Lifetime <= 0:
		return fmt.Errorf("%w: worker %d: lifetime must be positive", ErrInvalidConfig, c.Index)
	}
	return nil
}

// Stopped reports whether an end timestamp was recorded.
func (c Config) Stopped() bool { return !c.Ended.IsZero() }

// ActualDuration is the time between start and end, or zero if either is unknown.
func (c Config) ActualDuration() time.Duration {
	if c.Started.IsZero() || c.Ended.IsZero() {
		return 0
	}
	return c.Ended.Sub(c.Started)
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Regions = append([]int(nil), c.Regions...)
	return c
}
