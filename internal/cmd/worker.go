package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/srediag/regionshm/internal/logging"
	"github.com/srediag/regionshm/pkg/worker"
)

func newWorkerCommand() *cobra.Command {
	var inv worker.Invocation
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run one worker against an existing buffer (started by run)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// run passes its logging config through logging.Environ.
			logger, err := logging.New(logging.DefaultConfig())
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			logger = logging.ForWorker(logger, os.Getpid())

			// The supervisor stops workers with SIGTERM; the default action
			// ends the process wherever it is, critical section included.
			return worker.Attach(context.Background(), inv, logger)
		},
	}
	worker.BindFlags(cmd.Flags(), &inv)
	return cmd
}
