package framework

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// OrchestratorConfig holds the collaborators shared by every task an
// Orchestrator submits.
type OrchestratorConfig struct {
	// MaxConcurrent bounds background tasks running at once; <= 0 means 4.
	MaxConcurrent int64
	Runner        CommandRunner
	Builder       *CommandBuilder
	Parser        DiagnosticParser
	Telemetry     Telemetry
	Logger        *slog.Logger
}

// Orchestrator is a small worker pool for compile tasks. Independent tasks
// are not ordered or mutually excluded; serializing compiles of the same file
// is up to the caller.
type Orchestrator struct {
	cfg OrchestratorConfig
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewOrchestrator creates an orchestrator with cfg's shared collaborators.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Runner == nil {
		cfg.Runner = NewExecRunner(cfg.Logger)
	}
	return &Orchestrator{
		cfg: cfg,
		sem: semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Submit fills unset collaborators in opts from the orchestrator and starts
// the task. Background tasks queue for a worker slot; foreground tasks run
// on the calling goroutine.
func (o *Orchestrator) Submit(ctx context.Context, opts TaskOptions) *Task {
	if opts.Runner == nil {
		opts.Runner = o.cfg.Runner
	}
	if opts.Builder == nil {
		opts.Builder = o.cfg.Builder
	}
	if opts.Parser == nil {
		opts.Parser = o.cfg.Parser
	}
	if opts.Telemetry == nil {
		opts.Telemetry = o.cfg.Telemetry
	}
	if opts.Logger == nil {
		opts.Logger = o.cfg.Logger
	}
	t := NewTask(opts)
	t.dispatch = func(run func()) {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.sem.Acquire(ctx, 1); err != nil {
				o.cfg.Logger.Warn("task dropped before start", "task_id", t.ID(), "error", err)
				t.abort(err)
				return
			}
			defer o.sem.Release(1)
			run()
		}()
	}
	t.Start(ctx)
	return t
}

// CompileFile submits a compile-only task.
func (o *Orchestrator) CompileFile(ctx context.Context, opts TaskOptions) *Task {
	opts.Mode = ModeCompileOnly
	return o.Submit(ctx, opts)
}

// CompileAndRunFile submits a compile-and-run task.
func (o *Orchestrator) CompileAndRunFile(ctx context.Context, opts TaskOptions) *Task {
	opts.Mode = ModeCompileAndRun
	return o.Submit(ctx, opts)
}

// Wait blocks until every background task submitted so far has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
