package worker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/srediag/regionshm/pkg/lifecycle"
)

// Memory gives access to the regions of the shared buffer.
type Memory interface {
	Region(region int) ([]int32, bool)
}

// Locks serializes access to regions.
type Locks interface {
	Acquire(region int) error
	Release(region int) error
}

// Option configures a Task.
type Option func(*Task)

// WithLogger sets the logger for trace lines and results.
func WithLogger(l *zap.Logger) Option {
	return func(t *Task) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithObserver sets the observer notified of state transitions.
func WithObserver(o lifecycle.Observer) Option {
	return func(t *Task) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithMeter sets the OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(t *Task) {
		if m != nil {
			t.meter = m
		}
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(tr trace.Tracer) Option {
	return func(t *Task) {
		if tr != nil {
			t.tracer = tr
		}
	}
}

// WithResultHandler sets a callback invoked after every critical section.
func WithResultHandler(fn func(Result)) Option {
	return func(t *Task) {
		t.onResult = fn
	}
}

// WithSleep replaces the pacing sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Task) {
		if fn != nil {
			t.sleep = fn
		}
	}
}

// Task runs one worker's operation loop.
type Task struct {
	cfg   Config
	mem   Memory
	locks Locks

	logger   *zap.Logger
	observer lifecycle.Observer
	meter    metric.Meter
	tracer   trace.Tracer
	onResult func(Result)
	sleep    func(ctx context.Context, d time.Duration) error

	operations metric.Int64Counter
	lockWait   metric.Float64Histogram
	state      lifecycle.State
}

// NewTask validates cfg and binds it to the shared buffer and its locks.
func NewTask(cfg Config, mem Memory, locks Locks, opts ...Option) (*Task, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Task{
		cfg:      cfg.Clone(),
		mem:      mem,
		locks:    locks,
		logger:   zap.NewNop(),
		observer: lifecycle.Nop,
		meter:    metricnoop.NewMeterProvider().Meter("regionshm/worker"),
		tracer:   tracenoop.NewTracerProvider().Tracer("regionshm/worker"),
		sleep:    sleepContext,
		state:    lifecycle.StateCycling,
	}
	for _, opt := range opts {
		opt(t)
	}
	var err error
	t.operations, err = t.meter.Int64Counter("regionshm.region.operations",
		metric.WithDescription("Critical sections completed, by operation."))
	if err != nil {
		return nil, err
	}
	t.lockWait, err = t.meter.Float64Histogram("regionshm.lock.wait",
		metric.WithDescription("Time spent waiting for a region lock."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	t.logger = t.logger.With(zap.Int("worker", cfg.Index), zap.Stringer("op", cfg.Op))
	return t, nil
}

// Config returns the task's configuration.
func (t *Task) Config() Config { return t.cfg.Clone() }

// Run executes the loop: visit every assigned region under its lock, pausing
// after each, then rest for the cadence, until the accumulated rests reach the
// lifetime. Run returns nil once the lifetime is used up, or ctx.Err() if ctx
// ends first. In a worker process ctx never ends; the process is killed instead.
func (t *Task) Run(ctx context.Context) error {
	defer t.enter(lifecycle.StateStopped)
	t.logger.Info("worker started",
		zap.Ints("regions", t.cfg.Regions),
		zap.Duration("cadence", t.cfg.Cadence),
		zap.Duration("lifetime", t.cfg.Lifetime))

	var elapsed time.Duration
	for elapsed < t.cfg.Lifetime {
		for _, region := range t.cfg.Regions {
			values, ok := t.mem.Region(region)
			if !ok {
				t.logger.Debug("skipping region outside the buffer", zap.Int("region", region))
				continue
			}
			t.enter(lifecycle.StateCycling)
			if err := t.critical(ctx, region, values); err != nil {
				return err
			}
			t.enter(lifecycle.StatePaced)
			if err := t.sleep(ctx, t.cfg.Pause); err != nil {
				return err
			}
		}
		t.enter(lifecycle.StateResting)
		if err := t.sleep(ctx, t.cfg.Cadence); err != nil {
			return err
		}
		elapsed += t.cfg.Cadence
	}
	t.logger.Info("worker lifetime used up", zap.Duration("elapsed", elapsed))
	return nil
}

func (t *Task) critical(ctx context.Context, region int, values []int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := t.logger.With(zap.Int("region", region))
	log.Info("waiting for region lock")
	waitStart := time.Now()
	if err := t.locks.Acquire(region); err != nil {
		return fmt.Errorf("acquire region %d: %w", region, err)
	}
	attrs := metric.WithAttributes(attribute.String("op", t.cfg.Op.String()), attribute.Int("region", region))
	t.lockWait.Record(ctx, time.Since(waitStart).Seconds(), attrs)
	log.Info("took region lock")

	_, span := t.tracer.Start(ctx, "region.critical_section", trace.WithAttributes(
		attribute.Int("worker", t.cfg.Index),
		attribute.Int("region", region),
		attribute.String("op", t.cfg.Op.String()),
	))
	res, applyErr := Apply(t.cfg.Op, region, values)
	releaseErr := t.locks.Release(region)
	span.End()
	if applyErr != nil {
		return applyErr
	}
	if releaseErr != nil {
		return fmt.Errorf("release region %d: %w", region, releaseErr)
	}
	log.Info("released region lock")

	switch t.cfg.Op {
	case OpMax:
		log.Info("region maximum", zap.Int32("max", res.Max))
	case OpAverage:
		log.Info("region average", zap.Float64("mean", res.Mean))
	default:
		log.Info("region updated")
	}
	t.operations.Add(ctx, 1, attrs)
	if t.onResult != nil {
		t.onResult(res)
	}
	return nil
}

func (t *Task) enter(s lifecycle.State) {
	if s == t.state {
		return
	}
	from := t.state
	t.state = s
	t.observer.Transition(lifecycle.Transition{Worker: t.cfg.Index, From: from, To: s, At: time.Now()})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
