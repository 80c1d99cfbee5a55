// Package cmd implements the regionshm command line.
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// NewRootCommand builds the command tree reading configuration through v.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "regionshm",
		Short: "Supervise worker processes sharing a region-locked buffer",
		Long: `regionshm creates a shared integer buffer split into regions, one named
lock per region, and a fixed fleet of worker processes that read and
rewrite their regions under those locks. The supervisor bounds every
worker's lifetime and removes every shared name on exit or on signal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default is ./regionshm.yaml or $HOME/.config/regionshm/regionshm.yaml)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	root.AddCommand(newRunCommand(v))
	root.AddCommand(newWorkerCommand())
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(viper.New())
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(stderr, "regionshm:", exitErr.err)
		}
		return exitErr.code
	}
	fmt.Fprintln(stderr, "regionshm:", err)
	return 1
}
