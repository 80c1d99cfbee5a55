package supervisor

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srediag/regionshm/pkg/worker"
)

type fakeProcess struct {
	pid     int
	inv     worker.Invocation
	done    chan struct{}
	once    sync.Once
	signals atomic.Int32
	// ignore keeps the process running after a signal.
	ignore bool
}

func newFakeProcess(pid int, inv worker.Invocation, exitAfter time.Duration) *fakeProcess {
	p := &fakeProcess{pid: pid, inv: inv, done: make(chan struct{})}
	if exitAfter > 0 {
		time.AfterFunc(exitAfter, p.exit)
	}
	return p
}

func (p *fakeProcess) exit() { p.once.Do(func() { close(p.done) }) }

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Signal(os.Signal) error {
	p.signals.Add(1)
	select {
	case <-p.done:
		return os.ErrProcessDone
	default:
	}
	if !p.ignore {
		p.exit()
	}
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.done
	return nil
}

func (p *fakeProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

type fakeSpawner struct {
	mu      sync.Mutex
	nextPid int
	procs   []*fakeProcess
	// failAt makes the n-th spawn (zero based) fail; negative never fails.
	failAt int
	// exitAfter makes workers with the given index exit on their own.
	exitAfter map[int]time.Duration
	// ignore makes workers with the given index survive signals.
	ignore map[int]bool
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{nextPid: 40000, failAt: -1, exitAfter: map[int]time.Duration{}, ignore: map[int]bool{}}
}

func (f *fakeSpawner) Spawn(ctx context.Context, inv worker.Invocation) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.procs) == f.failAt {
		return nil, errors.New("fork: resource temporarily unavailable")
	}
	f.nextPid++
	p := newFakeProcess(f.nextPid, inv, f.exitAfter[inv.Config.Index])
	p.ignore = f.ignore[inv.Config.Index]
	f.procs = append(f.procs, p)
	return p, nil
}

func (f *fakeSpawner) spawned() []*fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeProcess(nil), f.procs...)
}

func alwaysAlive(int) (bool, error) { return true, nil }
