package framework

import (
	"context"
	"errors"
	"sync"
)

// fakeProcess exits immediately with a fixed status after replaying its
// scripted output into the request sinks.
type fakeProcess struct {
	pid      int
	command  Command
	exitCode int
	done     chan struct{}

	mu         sync.Mutex
	terminated bool
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Command() Command      { return p.command }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	return p.exitCode, nil
}

func (p *fakeProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.terminated {
		p.terminated = true
		close(p.done)
	}
	return nil
}

type fakeScript struct {
	stdout   []string
	stderr   []string
	exitCode int
	// keepAlive leaves the process running until Terminate.
	keepAlive bool
	startErr  error
}

// fakeRunner records every request and answers with scripts keyed by tool
// executable name ("javac" or "java").
type fakeRunner struct {
	mu       sync.Mutex
	scripts  map[string]fakeScript
	requests []CommandRequest
	procs    []*fakeProcess
}

func newFakeRunner(scripts map[string]fakeScript) *fakeRunner {
	return &fakeRunner{scripts: scripts}
}

func (r *fakeRunner) Start(ctx context.Context, req CommandRequest) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	script, ok := r.scripts[toolName(req.Command.Path)]
	if !ok {
		return nil, errors.New("no script for " + req.Command.Path)
	}
	if script.startErr != nil {
		return nil, script.startErr
	}
	for _, line := range script.stdout {
		req.Stdout(line)
	}
	for _, line := range script.stderr {
		req.Stderr(line)
	}
	p := &fakeProcess{
		pid:      1000 + len(r.requests),
		command:  req.Command,
		exitCode: script.exitCode,
		done:     make(chan struct{}),
	}
	if !script.keepAlive {
		p.terminated = true
		close(p.done)
	}
	r.procs = append(r.procs, p)
	return p, nil
}

func (r *fakeRunner) commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.requests))
	for i, req := range r.requests {
		out[i] = req.Command
	}
	return out
}

func (r *fakeRunner) spawned(tool string) int {
	n := 0
	for _, cmd := range r.commands() {
		if toolName(cmd.Path) == tool {
			n++
		}
	}
	return n
}

func toolName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			path = path[i+1:]
			break
		}
	}
	if len(path) > 4 && path[len(path)-4:] == ".exe" {
		path = path[:len(path)-4]
	}
	return path
}

// recordingTelemetry keeps every emitted event.
type recordingTelemetry struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingTelemetry) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingTelemetry) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
