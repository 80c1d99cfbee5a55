package regionlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrNotHeld is returned by Release when this handle does not own the lock.
	ErrNotHeld = errors.New("region lock not held")
	// ErrClosed is returned when the handle was already closed.
	ErrClosed = errors.New("region lock closed")
	// ErrOutOfRange is returned for a region index outside the set.
	ErrOutOfRange = errors.New("region index out of range")
)

// Lock is one process's handle to a named region lock.
//
// At most one handle system-wide holds the lock at a time. A handle is not
// reentrant and must not be shared by goroutines that each expect exclusion;
// open one handle per goroutine instead.
type Lock struct {
	name string
	path string

	mu     sync.Mutex
	fd     int
	held   bool
	closed bool
}

// Name returns the lock's system-visible name.
func (l *Lock) Name() string { return l.name }

// Path returns the lock's system-visible path.
func (l *Lock) Path() string { return l.path }

// Acquire blocks until the lock is free and takes it.
func (l *Lock) Acquire() error {
	fd, err := l.descriptor()
	if err != nil {
		return err
	}
	if err := lockExclusive(fd); err != nil {
		return fmt.Errorf("acquire %s: %w", l.name, err)
	}
	l.setHeld(true)
	return nil
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (l *Lock) TryAcquire() (bool, error) {
	fd, err := l.descriptor()
	if err != nil {
		return false, err
	}
	ok, err := tryLockExclusive(fd)
	if err != nil {
		return false, fmt.Errorf("try acquire %s: %w", l.name, err)
	}
	if ok {
		l.setHeld(true)
	}
	return ok, nil
}

// AcquireContext polls for the lock until it is taken or ctx is done.
func (l *Lock) AcquireContext(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		ok, err := l.TryAcquire()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errBusy
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

var errBusy = errors.New("busy")

// Release gives the lock back. Only the holding handle may release it.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if !l.held {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.name)
	}
	if err := unlock(l.fd); err != nil {
		return fmt.Errorf("release %s: %w", l.name, err)
	}
	l.held = false
	return nil
}

// Held reports whether this handle currently owns the lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Close drops the local handle. A held lock is released by the kernel.
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.held = false
	return closeFd(l.fd)
}

func (l *Lock) descriptor() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return -1, ErrClosed
	}
	return l.fd, nil
}

func (l *Lock) setHeld(v bool) {
	l.mu.Lock()
	l.held = v
	l.mu.Unlock()
}
