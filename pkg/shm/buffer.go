package shm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"unsafe"

	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	internalshm "github.com/srediag/regionshm/internal/shm"
)

const (
	// DefaultName is the object name used when Options.Name is empty.
	DefaultName = "regionshm"
	// DefaultRowWidth is the number of values per dump row.
	DefaultRowWidth = 10

	valueSize = int(unsafe.Sizeof(int32(0)))
)

var (
	// ErrClosed is returned when the buffer has already been unmapped.
	ErrClosed = errors.New("shared buffer closed")
	// ErrNoSpace is returned when the shared memory filesystem cannot hold the buffer.
	ErrNoSpace = errors.New("shared memory has not enough free space")
)

// Options identify a shared buffer. The same Options are used by the creator
// and by every process that attaches to it.
type Options struct {
	// Name is the system-visible object name.
	Name string
	// Dir is the shared memory directory, /dev/shm when empty.
	Dir string
	// Len is the number of int32 values.
	Len int
	// Regions is the number of equal regions Len is split into.
	Regions int
}

// Path returns the system-visible path of the buffer.
func (o Options) Path() string {
	name := o.Name
	if name == "" {
		name = DefaultName
	}
	return internalshm.ObjectPath(o.Dir, name)
}

// Option configures instrumentation of a Buffer.
type Option func(*Buffer)

// WithLogger sets the logger used for teardown warnings.
func WithLogger(l *zap.Logger) Option {
	return func(b *Buffer) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMeter sets the OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(b *Buffer) {
		if m != nil {
			b.meter = m
		}
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(b *Buffer) {
		if t != nil {
			b.tracer = t
		}
	}
}

// Buffer is a fixed-length int32 array in memory shared between processes.
type Buffer struct {
	mu     sync.RWMutex
	region *internalshm.MappedRegion
	values []int32
	layout Layout
	path   string
	closed bool

	logger         *zap.Logger
	meter          metric.Meter
	tracer         trace.Tracer
	teardownErrors metric.Int64Counter
}

// Create allocates, sizes and maps a new named buffer. The returned Buffer owns
// the name and removes it on Destroy.
func Create(ctx context.Context, opts Options, o ...Option) (*Buffer, error) {
	return open(ctx, opts, true, o...)
}

// Open attaches to a buffer created by another process.
func Open(ctx context.Context, opts Options, o ...Option) (*Buffer, error) {
	return open(ctx, opts, false, o...)
}

func open(ctx context.Context, opts Options, create bool, o ...Option) (*Buffer, error) {
	layout, err := NewLayout(opts.Len, opts.Regions)
	if err != nil {
		return nil, err
	}
	b := &Buffer{
		layout: layout,
		path:   opts.Path(),
		logger: zap.NewNop(),
		meter:  metricnoop.NewMeterProvider().Meter("regionshm/shm"),
		tracer: tracenoop.NewTracerProvider().Tracer("regionshm/shm"),
	}
	for _, opt := range o {
		opt(b)
	}
	b.teardownErrors, err = b.meter.Int64Counter("regionshm.buffer.teardown_errors",
		metric.WithDescription("Failed unmap or unlink steps during buffer teardown."))
	if err != nil {
		return nil, err
	}

	ctx, span := b.tracer.Start(ctx, "shm.open", trace.WithAttributes(
		attribute.String("path", b.path),
		attribute.Bool("create", create),
		attribute.Int("len", opts.Len),
	))
	defer span.End()

	size := opts.Len * valueSize
	if create && !internalshm.CanCreate(uint64(size), opts.Dir) {
		return nil, fmt.Errorf("%w: path %s size %d", ErrNoSpace, b.path, size)
	}
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Dir:    opts.Dir,
		Name:   nameOrDefault(opts.Name),
		Size:   size,
		Create: create,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if region.ReplacedStale {
		b.logger.Warn("removed stale shared buffer", zap.String("path", region.Path))
	}
	b.region = region
	b.values = internalshm.Int32s(region.Addr)[:opts.Len]
	return b, nil
}

func nameOrDefault(name string) string {
	if name == "" {
		return DefaultName
	}
	return name
}

// Path returns the system-visible path of the buffer.
func (b *Buffer) Path() string { return b.path }

// Layout returns the region partitioning of the buffer.
func (b *Buffer) Layout() Layout { return b.layout }

// Len returns the number of values.
func (b *Buffer) Len() int { return b.layout.Len }

// Region returns a live view of one region. The caller must hold the region's
// lock while mutating it and must not use the view after Close or Destroy.
func (b *Buffer) Region(region int) ([]int32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, false
	}
	start, end, ok := b.layout.Span(region)
	if !ok {
		return nil, false
	}
	return b.values[start:end:end], true
}

// Load atomically reads the value at index i.
func (b *Buffer) Load(i int) int32 {
	return internalshm.AtomicLoadInt32(unsafe.Pointer(&b.values[i]))
}

// Store atomically writes the value at index i.
func (b *Buffer) Store(i int, v int32) {
	internalshm.AtomicStoreInt32(unsafe.Pointer(&b.values[i]), v)
}

// Fill writes an independent draw from [lo, hi] into every slot. It is not
// synchronized with workers and must run before any of them start.
func (b *Buffer) Fill(rng *rand.Rand, lo, hi int32) error {
	if lo > hi {
		return fmt.Errorf("invalid fill range [%d, %d]", lo, hi)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	span := int(hi) - int(lo) + 1
	for i := range b.values {
		b.Store(i, lo+int32(rng.IntN(span)))
	}
	return nil
}

// Snapshot returns a copy of the current contents, or nil once closed.
func (b *Buffer) Snapshot() []int32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	out := make([]int32, len(b.values))
	for i := range b.values {
		out[i] = b.Load(i)
	}
	return out
}

// Rows formats the contents as text rows of width values each. It takes no
// region locks and is meant for use while no worker is running.
func (b *Buffer) Rows(width int) []string {
	return FormatRows(b.Snapshot(), width)
}

// FormatRows renders values as rows of width right-aligned columns.
func FormatRows(values []int32, width int) []string {
	if width <= 0 {
		width = DefaultRowWidth
	}
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	rows := make([]string, 0, (len(values)+width-1)/width)
	for i, v := range values {
		_, _ = fmt.Fprintf(bb, "%8d", v)
		if (i+1)%width == 0 || i == len(values)-1 {
			rows = append(rows, bb.String())
			bb.Reset()
		}
	}
	return rows
}

// Close unmaps the buffer without removing its name.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.values = nil
	return internalshm.UnmapRegion(context.Background(), b.region)
}

// Destroy unmaps the buffer and removes its name from the system namespace.
// Both steps are attempted; failures are logged and returned joined. Calling
// Destroy again is a no-op.
func (b *Buffer) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed && b.region == nil {
		return nil
	}
	ctx, span := b.tracer.Start(context.Background(), "shm.destroy",
		trace.WithAttributes(attribute.String("path", b.path)))
	defer span.End()

	var errs []error
	if !b.closed {
		if err := internalshm.UnmapRegion(ctx, b.region); err != nil {
			b.logger.Warn("shared buffer unmap failed", zap.String("path", b.path), zap.Error(err))
			b.teardownErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("step", "unmap")))
			errs = append(errs, err)
		}
	}
	if err := internalshm.UnlinkRegion(b.path); err != nil {
		b.logger.Warn("shared buffer unlink failed", zap.String("path", b.path), zap.Error(err))
		b.teardownErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("step", "unlink")))
		errs = append(errs, err)
	} else {
		b.logger.Info("shared buffer removed", zap.String("path", b.path))
	}
	b.closed = true
	b.values = nil
	b.region = nil
	return errors.Join(errs...)
}
