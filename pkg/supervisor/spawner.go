package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/srediag/regionshm/pkg/worker"
)

// Process is a started worker process.
type Process interface {
	Pid() int
	Signal(sig os.Signal) error
	// Wait blocks until the process exits. It is called exactly once.
	Wait() error
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, inv worker.Invocation) (Process, error)
}

// ExecSpawner starts workers by executing a binary with the worker flags.
type ExecSpawner struct {
	// Path is the executable, the running binary when empty.
	Path string
	// Args come before the worker flags, typically the worker subcommand.
	Args []string
	// Env is appended to the supervisor's environment.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecSpawner returns a spawner re-executing the running binary with the
// hidden worker subcommand.
func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{Args: []string{"worker"}, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Spawn starts one worker. The process is not tied to ctx; ctx only aborts
// a spawn that has not started yet.
func (e *ExecSpawner) Spawn(ctx context.Context, inv worker.Invocation) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := e.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}
	args := append(append([]string(nil), e.Args...), inv.Args()...)
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	cmd.SysProcAttr = sysProcAttr()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %d: %w", inv.Config.Index, err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }

func (p *execProcess) Wait() error { return p.cmd.Wait() }
