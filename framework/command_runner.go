package framework

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CommandRequest captures process execution metadata.
type CommandRequest struct {
	Command Command
	// Env entries are appended to the inherited environment.
	Env    []string
	Stdout LineSink
	Stderr LineSink
}

// Process is a spawned child process. The exit status is read exactly once,
// after both output streams have been drained.
type Process interface {
	Pid() int
	Command() Command
	// Wait blocks until the process exits and returns its exit status. A
	// non-nil error means the status could not be determined.
	Wait() (int, error)
	// Done is closed once Wait would no longer block.
	Done() <-chan struct{}
	Alive() bool
	// Terminate kills the process (and its process group where supported).
	Terminate() error
}

// CommandRunner describes a primitive capable of spawning commands.
type CommandRunner interface {
	Start(ctx context.Context, req CommandRequest) (Process, error)
}

// ExecRunner spawns commands as local child processes. Each stream gets its
// own pump goroutine so a chatty child never blocks on a full pipe.
type ExecRunner struct {
	Logger *slog.Logger
}

// NewExecRunner returns a runner logging to logger (nil means slog.Default).
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{Logger: logger}
}

// Start spawns req.Command and returns immediately. The context only guards
// the spawn itself; a started process ends by exiting or via Terminate.
func (r *ExecRunner) Start(ctx context.Context, req CommandRequest) (Process, error) {
	if r == nil {
		return nil, errors.New("exec runner missing")
	}
	if req.Command.Path == "" {
		return nil, errors.New("command path required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.Command(req.Command.Path, req.Command.Args...)
	cmd.Dir = req.Command.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	setProcessGroup(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", req.Command.Path, err)
	}
	p := &execProcess{
		cmd:     cmd,
		command: req.Command,
		done:    make(chan struct{}),
	}
	var pumps errgroup.Group
	pumps.Go(func() error {
		NewStreamPump("stdout", stdout, req.Stdout, logger).Run()
		return nil
	})
	pumps.Go(func() error {
		NewStreamPump("stderr", stderr, req.Stderr, logger).Run()
		return nil
	})
	go func() {
		_ = pumps.Wait()
		p.finish(cmd.Wait())
		logger.Debug("process exited", "pid", p.Pid(), "exit_code", p.exitCode, "command", req.Command.Path)
	}()
	logger.Debug("process started", "pid", p.Pid(), "command", req.Command.String(), "dir", req.Command.Dir)
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	command Command

	done     chan struct{}
	exitCode int
	waitErr  error
	termOnce sync.Once
	termErr  error
}

func (p *execProcess) finish(err error) {
	p.exitCode = 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.exitCode = exitErr.ExitCode()
		} else {
			p.exitCode = -1
			p.waitErr = err
		}
	}
	close(p.done)
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Command() Command { return p.command }

func (p *execProcess) Wait() (int, error) {
	<-p.done
	return p.exitCode, p.waitErr
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *execProcess) Terminate() error {
	if !p.Alive() {
		return nil
	}
	p.termOnce.Do(func() {
		p.termErr = killProcessGroup(p.cmd)
	})
	return p.termErr
}
