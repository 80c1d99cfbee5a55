package regionlock

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	// DefaultDir is the directory holding lock names.
	DefaultDir = "/dev/shm"
	// DefaultPrefix is the lock name prefix.
	DefaultPrefix = "regionshm"
)

// Options identify a lock set. Creator and attaching processes use the same Options.
type Options struct {
	Dir    string
	Prefix string
}

// Name returns the deterministic name of the lock for region i.
func (o Options) Name(i int) string {
	prefix := strings.TrimPrefix(o.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s.lock.%d", prefix, i)
}

// Path returns the system-visible path of the lock for region i.
func (o Options) Path(i int) string {
	dir := o.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, o.Name(i))
}

// Set holds one lock per region.
type Set struct {
	opts   Options
	locks  []*Lock
	logger *zap.Logger

	mu        sync.Mutex
	destroyed bool
}

// SetOption configures a Set.
type SetOption func(*Set)

// WithLogger sets the logger used for rollback and teardown warnings.
func WithLogger(l *zap.Logger) SetOption {
	return func(s *Set) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSet(opts Options, count int, o []SetOption) (*Set, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid lock count %d", count)
	}
	s := &Set{opts: opts, locks: make([]*Lock, 0, count), logger: zap.NewNop()}
	for _, opt := range o {
		opt(s)
	}
	return s, nil
}

// CreateAll creates count fresh locks, all unlocked. A lock name left behind
// by an earlier run is removed first so no stale state is inherited. If lock k
// cannot be created, locks 0..k-1 are closed and removed before returning.
func CreateAll(opts Options, count int, o ...SetOption) (*Set, error) {
	s, err := newSet(opts, count, o)
	if err != nil {
		return nil, err
	}
	for i := 0; i < count; i++ {
		path := opts.Path(i)
		fd, err := createFile(path)
		if isExist(err) {
			s.logger.Warn("removing stale region lock", zap.String("path", path))
			if rerr := removeFile(path); rerr != nil && !isNotExist(rerr) {
				err = rerr
			} else {
				fd, err = createFile(path)
			}
		}
		if err != nil {
			s.rollback(true)
			return nil, fmt.Errorf("create region lock %s: %w", path, err)
		}
		s.locks = append(s.locks, &Lock{name: opts.Name(i), path: path, fd: fd})
	}
	return s, nil
}

// OpenAll attaches to count locks created by another process.
func OpenAll(opts Options, count int, o ...SetOption) (*Set, error) {
	s, err := newSet(opts, count, o)
	if err != nil {
		return nil, err
	}
	for i := 0; i < count; i++ {
		path := opts.Path(i)
		fd, err := openFile(path)
		if err != nil {
			s.rollback(false)
			return nil, fmt.Errorf("open region lock %s: %w", path, err)
		}
		s.locks = append(s.locks, &Lock{name: opts.Name(i), path: path, fd: fd})
	}
	return s, nil
}

func (s *Set) rollback(remove bool) {
	for _, l := range s.locks {
		if err := l.Close(); err != nil {
			s.logger.Warn("close region lock during rollback", zap.String("name", l.name), zap.Error(err))
		}
		if !remove {
			continue
		}
		if err := removeFile(l.path); err != nil {
			s.logger.Warn("remove region lock during rollback", zap.String("name", l.name), zap.Error(err))
		}
	}
	s.locks = nil
}

// Len returns the number of locks.
func (s *Set) Len() int { return len(s.locks) }

// Lock returns the handle for region i, or nil when out of range.
func (s *Set) Lock(i int) *Lock {
	if i < 0 || i >= len(s.locks) {
		return nil
	}
	return s.locks[i]
}

// Acquire blocks until region i's lock is taken.
func (s *Set) Acquire(i int) error {
	l := s.Lock(i)
	if l == nil {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	return l.Acquire()
}

// AcquireContext takes region i's lock or gives up when ctx is done.
func (s *Set) AcquireContext(ctx context.Context, i int) error {
	l := s.Lock(i)
	if l == nil {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	return l.AcquireContext(ctx)
}

// TryAcquire takes region i's lock if it is free.
func (s *Set) TryAcquire(i int) (bool, error) {
	l := s.Lock(i)
	if l == nil {
		return false, fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	return l.TryAcquire()
}

// Release gives back region i's lock.
func (s *Set) Release(i int) error {
	l := s.Lock(i)
	if l == nil {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	return l.Release()
}

// Close drops all local handles without removing any name.
func (s *Set) Close() error {
	var errs []error
	for _, l := range s.locks {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", l.name, err))
		}
	}
	return errors.Join(errs...)
}

// DestroyAll closes every handle and removes every name from the system
// namespace, whatever the lock's state. Failures are logged and the remaining
// locks are still processed. Calling it again is a no-op.
func (s *Set) DestroyAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	s.destroyed = true

	var errs []error
	for _, l := range s.locks {
		if err := l.Close(); err != nil {
			s.logger.Warn("close region lock", zap.String("name", l.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", l.name, err))
		}
		if err := removeFile(l.path); err != nil {
			s.logger.Warn("remove region lock", zap.String("name", l.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("remove %s: %w", l.name, err))
		}
	}
	if len(errs) == 0 {
		s.logger.Info("region locks removed", zap.Int("count", len(s.locks)))
	}
	return errors.Join(errs...)
}
