// Package proc wraps subprocess startup behind a small interface so the
// streaming pipelines can be exercised in tests with a fake process that
// records whether it was killed.
package proc

import (
	"context"
	"io"
	"os/exec"
)

// Runner starts external media-tool processes.
type Runner interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// Process is a started subprocess. Kill must terminate the process
// non-gracefully; it is safe to call after the process has exited.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
	Kill() error
}

// ExecRunner is the os/exec backed Runner used in production.
type ExecRunner struct{}

func (ExecRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
