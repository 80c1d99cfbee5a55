package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/srediag/regionshm/pkg/regionlock"
	"github.com/srediag/regionshm/pkg/shm"
	"github.com/srediag/regionshm/pkg/worker"
)

const (
	// DefaultTick is the supervision polling interval.
	DefaultTick = time.Second
	// DefaultCeiling bounds the whole supervised run.
	DefaultCeiling = 130 * time.Second
	// DefaultFillMin and DefaultFillMax bound the initial buffer values.
	DefaultFillMin int32 = -50
	DefaultFillMax int32 = 50
)

var (
	// ErrBufferSetup wraps failures creating or filling the shared buffer.
	ErrBufferSetup = errors.New("shared buffer setup failed")
	// ErrLockSetup wraps failures creating the region lock set.
	ErrLockSetup = errors.New("region lock setup failed")
	// ErrSpawn wraps failures starting the worker fleet.
	ErrSpawn = errors.New("worker spawn failed")
	// ErrTerminated is returned once the shared resources have been released.
	ErrTerminated = errors.New("supervisor terminated")
)

// Config fixes the topology of a run.
type Config struct {
	Buffer  shm.Options
	Locks   regionlock.Options
	Workers []worker.Config
	// Tick is the polling interval, DefaultTick when zero.
	Tick time.Duration
	// Ceiling bounds every worker's lifetime, DefaultCeiling when zero.
	Ceiling time.Duration
	// FillMin and FillMax bound the initial values. Both zero selects the defaults.
	FillMin int32
	FillMax int32
}

func (c *Config) setDefaults() {
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.Ceiling <= 0 {
		c.Ceiling = DefaultCeiling
	}
	if c.FillMin == 0 && c.FillMax == 0 {
		c.FillMin, c.FillMax = DefaultFillMin, DefaultFillMax
	}
}

type slot struct {
	cfg     worker.Config
	proc    Process
	tracked bool
	exited  bool
}

type exitEvent struct {
	pid int
	err error
	at  time.Time
}

func pidExists(pid int) (bool, error) {
	return process.PidExists(int32(pid))
}

// Supervisor runs one fleet of workers over one shared buffer.
type Supervisor struct {
	cfg     Config
	logger  *zap.Logger
	metrics MetricsCollector
	spawner Spawner
	rng     *rand.Rand
	now     func() time.Time
	alive   func(pid int) (bool, error)

	mu       sync.Mutex
	workers  []*slot
	buf      *shm.Buffer
	locks    *regionlock.Set
	spawned  int
	tornDown bool

	pids    cmap.ConcurrentMap[string, int]
	exits   *queue.Queue
	reapers *ants.Pool
	reaping sync.WaitGroup
}

// New validates cfg and prepares a supervisor. No resource is created yet.
func New(cfg Config, opts ...Option) (*Supervisor, error) {
	cfg.setDefaults()
	if cfg.FillMin > cfg.FillMax {
		return nil, fmt.Errorf("fill range [%d, %d] is empty", cfg.FillMin, cfg.FillMax)
	}
	s := &Supervisor{
		cfg:     cfg,
		logger:  zap.NewNop(),
		metrics: NewNoopMetricsCollector(),
		spawner: NewExecSpawner(),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:     time.Now,
		alive:   pidExists,
		pids:    cmap.New[int](),
		exits:   queue.New(int64(len(cfg.Workers))),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.workers = make([]*slot, len(cfg.Workers))
	for i, w := range cfg.Workers {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		s.workers[i] = &slot{cfg: w.Clone()}
	}

	pool, err := ants.NewPool(max(1, len(cfg.Workers)), ants.WithPanicHandler(func(p any) {
		s.logger.Error("reaper panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, fmt.Errorf("create reaper pool: %w", err)
	}
	s.reapers = pool
	return s, nil
}

// Setup creates the buffer and the lock set and fills the buffer. Partially
// created resources are released before an error is returned.
func (s *Supervisor) Setup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return ErrTerminated
	}
	if s.buf != nil {
		return nil
	}

	buf, err := shm.Create(ctx, s.cfg.Buffer, shm.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBufferSetup, err)
	}
	locks, err := regionlock.CreateAll(s.cfg.Locks, buf.Layout().Regions, regionlock.WithLogger(s.logger))
	if err != nil {
		return errors.Join(fmt.Errorf("%w: %w", ErrLockSetup, err), buf.Destroy())
	}
	if err := buf.Fill(s.rng, s.cfg.FillMin, s.cfg.FillMax); err != nil {
		return errors.Join(fmt.Errorf("%w: %w", ErrBufferSetup, err), locks.DestroyAll(), buf.Destroy())
	}
	s.buf, s.locks = buf, locks
	s.logger.Info("shared resources ready",
		zap.String("buffer", buf.Path()),
		zap.Int("len", buf.Len()),
		zap.Int("regions", locks.Len()))
	return nil
}

// SpawnAll starts one process per worker and records its PID and start time.
// If a spawn fails, the workers already started are stopped, the shared
// resources are released and the error wraps ErrSpawn.
func (s *Supervisor) SpawnAll(ctx context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return nil, ErrTerminated
	}
	if s.buf == nil {
		return nil, fmt.Errorf("%w: shared resources are not set up", ErrSpawn)
	}
	if s.spawned > 0 {
		return nil, fmt.Errorf("%w: workers already spawned", ErrSpawn)
	}

	pids := make([]int, 0, len(s.workers))
	for i, w := range s.workers {
		inv := worker.Invocation{Config: w.cfg, Buffer: s.cfg.Buffer, Locks: s.cfg.Locks}
		proc, err := s.spawner.Spawn(ctx, inv)
		if err != nil {
			s.logger.Error("spawn failed, stopping fleet", zap.Int("worker", w.cfg.Index), zap.Error(err))
			s.stopAllLocked(worker.EndTerminated)
			return nil, errors.Join(fmt.Errorf("%w: worker %d: %w", ErrSpawn, w.cfg.Index, err), s.releaseLocked())
		}
		w.proc = proc
		w.tracked = true
		w.cfg.PID = proc.Pid()
		w.cfg.Started = s.now()
		s.spawned++
		s.pids.Set(strconv.Itoa(w.cfg.PID), i)
		s.startReaper(proc)
		s.metrics.WorkerSpawned(w.cfg.Op.String())
		s.logger.Info("worker spawned",
			zap.Int("worker", w.cfg.Index),
			zap.Int("pid", w.cfg.PID),
			zap.Stringer("op", w.cfg.Op),
			zap.Duration("lifetime", w.cfg.Lifetime))
		pids = append(pids, w.cfg.PID)
	}
	s.metrics.WorkersTracked(len(pids))
	return pids, nil
}

func (s *Supervisor) startReaper(proc Process) {
	s.reaping.Add(1)
	reap := func() {
		defer s.reaping.Done()
		err := proc.Wait()
		if putErr := s.exits.Put(exitEvent{pid: proc.Pid(), err: err, at: s.now()}); putErr != nil {
			s.logger.Debug("exit event dropped", zap.Int("pid", proc.Pid()), zap.Error(putErr))
		}
	}
	if err := s.reapers.Submit(reap); err != nil {
		s.logger.Warn("reaper pool unavailable", zap.Error(err))
		go reap()
	}
}

// Supervise polls every Tick until the ceiling. A worker that exited on its
// own has its end recorded; a worker whose time has reached the smaller of its
// lifetime and the ceiling is sent SIGTERM and has its end recorded. Polling
// stops early once no worker is tracked. Supervise then waits for every
// spawned process to exit. It returns ErrTerminated if Terminate ran.
func (s *Supervisor) Supervise(ctx context.Context) error {
	ceilingTicks := int((s.cfg.Ceiling + s.cfg.Tick - 1) / s.cfg.Tick)
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for tick := 1; tick <= ceilingTicks; tick++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		remaining, err := s.tick(tick)
		if err != nil {
			return err
		}
		if remaining == 0 {
			s.logger.Info("no worker left to supervise", zap.Int("tick", tick))
			break
		}
	}
	return s.reap(ctx)
}

func (s *Supervisor) tick(n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return 0, ErrTerminated
	}
	s.metrics.Tick()
	s.drainExitsLocked(worker.EndExited)

	elapsed := time.Duration(n) * s.cfg.Tick
	for _, w := range s.workers {
		if !w.tracked || elapsed < s.effectiveLifetime(w.cfg) {
			continue
		}
		if !w.exited {
			if err := w.proc.Signal(syscall.SIGTERM); err != nil {
				s.logger.Debug("signal failed", zap.Int("pid", w.cfg.PID), zap.Error(err))
			}
		}
		s.logger.Info("worker lifetime expired",
			zap.Int("worker", w.cfg.Index),
			zap.Int("pid", w.cfg.PID),
			zap.Duration("elapsed", elapsed))
		s.recordEndLocked(w, s.now(), worker.EndExpired)
	}
	remaining := s.trackedLocked()
	s.metrics.WorkersTracked(remaining)
	return remaining, nil
}

func (s *Supervisor) effectiveLifetime(cfg worker.Config) time.Duration {
	return min(cfg.Lifetime, s.cfg.Ceiling)
}

// reap blocks until every spawned process has exited. Every worker was
// expired by the last tick, so this only waits for signalled processes to go.
func (s *Supervisor) reap(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.tornDown {
			s.mu.Unlock()
			return ErrTerminated
		}
		s.drainExitsLocked(worker.EndExited)
		pending := s.spawned - s.exitedLocked()
		s.mu.Unlock()
		if pending == 0 {
			break
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := s.exits.Poll(1, s.cfg.Tick)
		if err != nil && !errors.Is(err, queue.ErrTimeout) && !errors.Is(err, queue.ErrDisposed) {
			return err
		}
		if len(items) > 0 {
			s.mu.Lock()
			for _, item := range items {
				s.handleExitLocked(item.(exitEvent), worker.EndExited)
			}
			s.mu.Unlock()
		}
	}
	s.reaping.Wait()
	s.metrics.WorkersTracked(0)
	return nil
}

// drainExitsLocked handles every queued exit without waiting. reap polls the
// queue outside the mutex, so a length read here may already be stale.
func (s *Supervisor) drainExitsLocked(reason string) {
	items, err := s.exits.TakeUntil(func(any) bool { return true })
	if err != nil {
		return
	}
	for _, item := range items {
		s.handleExitLocked(item.(exitEvent), reason)
	}
}

func (s *Supervisor) handleExitLocked(ev exitEvent, reason string) {
	i, ok := s.pids.Pop(strconv.Itoa(ev.pid))
	if !ok {
		return
	}
	w := s.workers[i]
	w.exited = true
	if ev.err != nil {
		s.logger.Debug("worker exited", zap.Int("worker", w.cfg.Index), zap.Int("pid", ev.pid), zap.Error(ev.err))
	}
	if w.tracked {
		s.recordEndLocked(w, ev.at, reason)
	}
}

// recordEndLocked sets the end timestamp once and stops tracking the worker.
func (s *Supervisor) recordEndLocked(w *slot, at time.Time, reason string) {
	w.tracked = false
	if w.cfg.Stopped() {
		return
	}
	if at.Before(w.cfg.Started) {
		at = w.cfg.Started
	}
	w.cfg.Ended = at
	w.cfg.EndReason = reason
	s.metrics.WorkerStopped(reason, w.cfg.ActualDuration())
}

func (s *Supervisor) trackedLocked() int {
	n := 0
	for _, w := range s.workers {
		if w.tracked {
			n++
		}
	}
	return n
}

func (s *Supervisor) exitedLocked() int {
	n := 0
	for _, w := range s.workers {
		if w.proc != nil && w.exited {
			n++
		}
	}
	return n
}

// stopAllLocked sends SIGTERM to every worker with a known PID that is still
// running and records its end.
func (s *Supervisor) stopAllLocked(reason string) {
	s.drainExitsLocked(worker.EndExited)
	at := s.now()
	for _, w := range s.workers {
		if w.proc == nil || w.cfg.PID <= 0 {
			continue
		}
		if !w.exited {
			alive, err := s.alive(w.cfg.PID)
			if err != nil || alive {
				if err := w.proc.Signal(syscall.SIGTERM); err != nil {
					s.logger.Debug("signal failed", zap.Int("pid", w.cfg.PID), zap.Error(err))
				}
			}
		}
		s.recordEndLocked(w, at, reason)
	}
	s.metrics.WorkersTracked(0)
}

// releaseLocked destroys the lock set, then the buffer, once. Every step is
// attempted; failures are logged, counted and joined.
func (s *Supervisor) releaseLocked() error {
	if s.tornDown {
		return nil
	}
	s.tornDown = true
	s.exits.Dispose()
	s.reapers.Release()

	var errs []error
	if s.locks != nil {
		if err := s.locks.DestroyAll(); err != nil {
			s.metrics.TeardownError("locks")
			s.logger.Warn("region lock teardown failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if s.buf != nil {
		if err := s.buf.Destroy(); err != nil {
			s.metrics.TeardownError("buffer")
			s.logger.Warn("shared buffer teardown failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	s.logger.Info("shared resources released")
	return errors.Join(errs...)
}

// Terminate stops every running worker with SIGTERM, records their ends and
// releases the shared resources. It is safe to call concurrently with
// Supervise and more than once; only the first call does anything.
func (s *Supervisor) Terminate(sig os.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return nil
	}
	fields := []zap.Field{zap.Int("workers", s.spawned)}
	if sig != nil {
		fields = append(fields, zap.Stringer("signal", sig))
	}
	s.logger.Warn("terminating", fields...)
	s.stopAllLocked(worker.EndTerminated)
	return s.releaseLocked()
}

// Teardown releases the shared resources on the normal path. Calling it after
// Terminate or a second time does nothing.
func (s *Supervisor) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

// Configs returns a copy of every worker config with PIDs and timestamps.
func (s *Supervisor) Configs() []worker.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]worker.Config, len(s.workers))
	for i, w := range s.workers {
		out[i] = w.cfg.Clone()
	}
	return out
}

// Rows formats the buffer contents, width values per row.
func (s *Supervisor) Rows(width int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return nil, ErrTerminated
	}
	if s.buf == nil {
		return nil, errors.New("shared buffer is not set up")
	}
	return s.buf.Rows(width), nil
}

// Live reports an error once the shared buffer is gone.
func (s *Supervisor) Live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return ErrTerminated
	}
	if s.buf == nil {
		return errors.New("shared buffer is not set up")
	}
	return nil
}

// Ready reports an error unless at least one worker is tracked.
func (s *Supervisor) Ready() error {
	if err := s.Live(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackedLocked() == 0 {
		return errors.New("no worker is running")
	}
	return nil
}

// Run performs Setup, SpawnAll, Supervise and Teardown. If ctx ends first the
// fleet is terminated.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Setup(ctx); err != nil {
		return err
	}
	if _, err := s.SpawnAll(ctx); err != nil {
		return err
	}
	if err := s.Supervise(ctx); err != nil {
		if ctx.Err() != nil {
			return errors.Join(err, s.Terminate(syscall.SIGTERM))
		}
		return err
	}
	return s.Teardown()
}
