package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/srediag/regionshm/pkg/lifecycle"
)

type fakeMemory struct {
	regions [][]int32
}

func newFakeMemory(regions, size int) *fakeMemory {
	m := &fakeMemory{regions: make([][]int32, regions)}
	for r := range m.regions {
		m.regions[r] = make([]int32, size)
		for i := range m.regions[r] {
			m.regions[r][i] = int32(r*size + i - 5)
		}
	}
	return m
}

func (m *fakeMemory) Region(region int) ([]int32, bool) {
	if region < 0 || region >= len(m.regions) {
		return nil, false
	}
	return m.regions[region], true
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[int]bool
	acquired []int
	failOn   int
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: map[int]bool{}, failOn: -1}
}

func (l *fakeLocks) Acquire(region int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if region == l.failOn {
		return errors.New("lock gone")
	}
	if l.held[region] {
		return errors.New("already held")
	}
	l.held[region] = true
	l.acquired = append(l.acquired, region)
	return nil
}

func (l *fakeLocks) Release(region int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held[region] {
		return errors.New("not held")
	}
	delete(l.held, region)
	return nil
}

type fakeClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) total(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

type TaskTestSuite struct {
	suite.Suite
	mem   *fakeMemory
	locks *fakeLocks
	clock *fakeClock
}

func (s *TaskTestSuite) SetupTest() {
	s.mem = newFakeMemory(10, 10)
	s.locks = newFakeLocks()
	s.clock = &fakeClock{}
}

func (s *TaskTestSuite) newTask(cfg Config, opts ...Option) *Task {
	task, err := NewTask(cfg, s.mem, s.locks, append([]Option{WithSleep(s.clock.sleep)}, opts...)...)
	s.Require().NoError(err)
	return task
}

func (s *TaskTestSuite) TestRunsUntilLifetimeUsedUp() {
	cfg := Config{Index: 5, Op: OpZeroNegatives, Cadence: 7 * time.Second, Pause: 250 * time.Millisecond, Lifetime: 49 * time.Second, Regions: []int{9}}
	s.Require().NoError(s.newTask(cfg).Run(context.Background()))

	s.Equal(7, s.clock.total(cfg.Cadence))
	s.Equal(7, s.clock.total(cfg.Pause))
	s.Len(s.locks.acquired, 7)
	s.Empty(s.locks.held, "every lock released")
}

func (s *TaskTestSuite) TestPartialCadenceStillRuns() {
	cfg := Config{Op: OpMax, Cadence: 3 * time.Second, Pause: time.Millisecond, Lifetime: 10 * time.Second, Regions: []int{0}}
	s.Require().NoError(s.newTask(cfg).Run(context.Background()))
	s.Equal(4, s.clock.total(cfg.Cadence))
}

func (s *TaskTestSuite) TestTracesCriticalSectionAtInfo() {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := Config{Index: 2, Op: OpDouble, Cadence: time.Second, Lifetime: time.Second, Regions: []int{4}}
	s.Require().NoError(s.newTask(cfg, WithLogger(zap.New(core))).Run(context.Background()))

	var trace []string
	for _, e := range logs.FilterField(zap.Int("region", 4)).All() {
		trace = append(trace, e.Message)
	}
	s.Equal([]string{"waiting for region lock", "took region lock", "released region lock", "region updated"}, trace)
}

func (s *TaskTestSuite) TestVisitsRegionsInOrder() {
	cfg := Config{Op: OpReverse, Cadence: time.Second, Pause: 2 * time.Millisecond, Lifetime: 2 * time.Second, Regions: []int{2, 5, 8}}
	s.Require().NoError(s.newTask(cfg).Run(context.Background()))
	s.Equal([]int{2, 5, 8, 2, 5, 8}, s.locks.acquired)
	// reversed twice
	s.Equal(int32(15), s.mem.regions[2][0])
}

func (s *TaskTestSuite) TestSkipsRegionsOutsideBuffer() {
	cfg := Config{Op: OpDouble, Cadence: time.Second, Lifetime: time.Second, Regions: []int{-1, 3, 10}}
	s.Require().NoError(s.newTask(cfg).Run(context.Background()))
	s.Equal([]int{3}, s.locks.acquired)
	s.Equal(int32(2*(30-5)), s.mem.regions[3][0])
}

func (s *TaskTestSuite) TestTransitions() {
	rec := &lifecycle.Recorder{}
	cfg := Config{Index: 2, Op: OpAverage, Cadence: time.Second, Pause: time.Millisecond, Lifetime: 2 * time.Second, Regions: []int{0, 1}}
	s.Require().NoError(s.newTask(cfg, WithObserver(rec)).Run(context.Background()))

	s.Equal([]lifecycle.State{
		lifecycle.StatePaced, lifecycle.StateCycling, lifecycle.StatePaced, lifecycle.StateResting,
		lifecycle.StateCycling, lifecycle.StatePaced, lifecycle.StateCycling, lifecycle.StatePaced, lifecycle.StateResting,
		lifecycle.StateStopped,
	}, rec.States())
	for _, tr := range rec.Transitions() {
		s.Equal(2, tr.Worker)
		s.NotEqual(tr.From, tr.To)
	}
}

func (s *TaskTestSuite) TestResultHandler() {
	var results []Result
	cfg := Config{Op: OpMax, Cadence: time.Second, Lifetime: time.Second, Regions: []int{0, 1}}
	s.Require().NoError(s.newTask(cfg, WithResultHandler(func(r Result) { results = append(results, r) })).Run(context.Background()))

	s.Require().Len(results, 2)
	s.Equal(int32(4), results[0].Max)
	s.Equal(int32(14), results[1].Max)
	s.Equal(1, results[1].Region)
}

func (s *TaskTestSuite) TestStopsOnCancel() {
	rec := &lifecycle.Recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	sleep := func(ctx context.Context, d time.Duration) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return ctx.Err()
	}
	cfg := Config{Op: OpSort, Cadence: time.Second, Lifetime: time.Hour, Regions: []int{0}}
	task, err := NewTask(cfg, s.mem, s.locks, WithSleep(sleep), WithObserver(rec))
	s.Require().NoError(err)

	s.ErrorIs(task.Run(ctx), context.Canceled)
	s.Empty(s.locks.held)
	states := rec.States()
	s.Equal(lifecycle.StateStopped, states[len(states)-1])
}

func (s *TaskTestSuite) TestLockFailureEndsRun() {
	s.locks.failOn = 1
	cfg := Config{Op: OpMax, Cadence: time.Second, Lifetime: time.Minute, Regions: []int{0, 1}}
	err := s.newTask(cfg).Run(context.Background())
	s.Require().Error(err)
	s.Contains(err.Error(), "acquire region 1")
}

func (s *TaskTestSuite) TestRejectsInvalidConfig() {
	_, err := NewTask(Config{Op: OpMax}, s.mem, s.locks)
	s.ErrorIs(err, ErrInvalidConfig)
}

func TestTaskTestSuite(t *testing.T) {
	suite.Run(t, new(TaskTestSuite))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), 0))
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestConfigIsCopied(t *testing.T) {
	cfg := Config{Op: OpMax, Cadence: time.Second, Lifetime: time.Second, Regions: []int{0}}
	task, err := NewTask(cfg, newFakeMemory(1, 1), newFakeLocks())
	require.NoError(t, err)
	cfg.Regions[0] = 4
	assert.Equal(t, []int{0}, task.Config().Regions)
}
