package worker

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/srediag/regionshm/pkg/regionlock"
	"github.com/srediag/regionshm/pkg/shm"
)

// Attach runs a worker inside the current process: it opens the shared buffer
// and lock set named by inv, runs the task to completion and closes its
// handles. Names are never removed here; that belongs to the supervisor.
func Attach(ctx context.Context, inv Invocation, logger *zap.Logger, opts ...Option) (err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := inv.Config
	if cfg.PID == 0 {
		cfg.PID = os.Getpid()
	}

	buf, err := shm.Open(ctx, inv.Buffer, shm.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("attach shared buffer: %w", err)
	}
	defer func() { err = errors.Join(err, buf.Close()) }()

	locks, err := regionlock.OpenAll(inv.Locks, buf.Layout().Regions, regionlock.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("attach region locks: %w", err)
	}
	defer func() { err = errors.Join(err, locks.Close()) }()

	task, err := NewTask(cfg, buf, locks, append([]Option{WithLogger(logger)}, opts...)...)
	if err != nil {
		return err
	}
	return task.Run(ctx)
}
