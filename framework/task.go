package framework

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode selects whether a task stops after compiling.
type Mode string

const (
	ModeCompileOnly   Mode = "compile"
	ModeCompileAndRun Mode = "compile_and_run"
)

// Execution selects where the task's work happens.
type Execution string

const (
	// ExecutionBackground runs the task on its own goroutine; Start returns
	// immediately.
	ExecutionBackground Execution = "background"
	// ExecutionForeground runs the task on the goroutine calling Start.
	ExecutionForeground Execution = "foreground"
)

// TaskState tracks a task through its lifecycle.
type TaskState string

const (
	StateConfigured      TaskState = "configured"
	StateBuildingCommand TaskState = "building_command"
	StateRunning         TaskState = "running"
	StateComplete        TaskState = "complete"
)

// CompileError is the close reason of a process channel whose compile step
// did not pass the run gate.
type CompileError struct {
	ExitCode int
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile failed with exit status %d", e.ExitCode)
}

// RunAfterSuccess is the default run gate: only exit status 0 proceeds.
func RunAfterSuccess(exitCode int) bool {
	return exitCode == 0
}

// TaskOptions configures a Task. Only File is required.
type TaskOptions struct {
	// File is the source file to compile.
	File string
	// Project enables package-aware compilation. Nil means a bare
	// single-file compile in the file's directory.
	Project *ProjectContext
	// Toolchain is the JDK root used when Project is nil.
	Toolchain string
	Mode      Mode
	Execution Execution

	// Diagnostics, when set, receives parsed diagnostics and is closed when
	// the compile step completes.
	Diagnostics *DiagnosticChannel
	Parser      DiagnosticParser
	// Processes, when set, receives the spawned run process and is closed
	// when the task completes.
	Processes *ProcessChannel

	// Stdout and Stderr receive compiler output lines.
	Stdout LineSink
	Stderr LineSink
	// RunStdout and RunStderr receive program output; they default to
	// Stdout and Stderr.
	RunStdout LineSink
	RunStderr LineSink

	// RunPolicy decides from the compile exit status whether to run.
	RunPolicy func(exitCode int) bool

	Runner    CommandRunner
	Builder   *CommandBuilder
	Telemetry Telemetry
	Logger    *slog.Logger
}

// Outcome summarizes a finished task.
type Outcome struct {
	CompileCommand  Command
	CompileExitCode int
	// Err is set when a process could not be spawned or waited on.
	Err         error
	RunCommand  *Command
	Ran         bool
	Diagnostics int
}

// Task compiles one file and, in ModeCompileAndRun, runs it when the compile
// step passes the run gate. A task runs at most once.
type Task struct {
	id       string
	opts     TaskOptions
	builder  CommandBuilder
	dispatch func(func())

	mu        sync.Mutex
	state     TaskState
	outcome   Outcome
	startOnce sync.Once
	done      chan struct{}
}

// NewTask applies defaults to opts and returns a configured task.
func NewTask(opts TaskOptions) *Task {
	if opts.Mode == "" {
		opts.Mode = ModeCompileOnly
	}
	if opts.Execution == "" {
		opts.Execution = ExecutionBackground
	}
	if opts.Stdout == nil {
		opts.Stdout = DiscardSink
	}
	if opts.Stderr == nil {
		opts.Stderr = DiscardSink
	}
	if opts.RunStdout == nil {
		opts.RunStdout = opts.Stdout
	}
	if opts.RunStderr == nil {
		opts.RunStderr = opts.Stderr
	}
	if opts.RunPolicy == nil {
		opts.RunPolicy = RunAfterSuccess
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Runner == nil {
		opts.Runner = NewExecRunner(opts.Logger)
	}
	if opts.Telemetry == nil {
		opts.Telemetry = nopTelemetry{}
	}
	builder := NewCommandBuilder(HostPlatform())
	if opts.Builder != nil {
		builder = *opts.Builder
	}
	id := uuid.NewString()
	return &Task{
		id:       id,
		opts:     opts,
		builder:  builder,
		dispatch: func(f func()) { go f() },
		state:    StateConfigured,
		done:     make(chan struct{}),
	}
}

// StartCompile creates and starts a compile-only task.
func StartCompile(ctx context.Context, opts TaskOptions) *Task {
	opts.Mode = ModeCompileOnly
	t := NewTask(opts)
	t.Start(ctx)
	return t
}

// StartCompileAndRun creates and starts a compile-and-run task.
func StartCompileAndRun(ctx context.Context, opts TaskOptions) *Task {
	opts.Mode = ModeCompileAndRun
	t := NewTask(opts)
	t.Start(ctx)
	return t
}

// ID returns the task identifier used in telemetry.
func (t *Task) ID() string { return t.id }

// Mode returns the task mode.
func (t *Task) Mode() Mode { return t.opts.Mode }

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed when the task reaches StateComplete.
func (t *Task) Done() <-chan struct{} { return t.done }

// Outcome returns the task summary. It is only final after Done is closed.
func (t *Task) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Wait blocks until the task completes or ctx ends.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Start begins the task. In background execution it returns immediately;
// in foreground execution it returns once the task is complete. Calling
// Start again has no effect.
func (t *Task) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		if t.opts.Execution == ExecutionForeground {
			t.execute(ctx)
			return
		}
		t.dispatch(func() { t.execute(ctx) })
	})
}

func (t *Task) setState(s TaskState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	t.emit(Event{Type: EventStateChange, State: s})
}

func (t *Task) emit(ev Event) {
	ev.TaskID = t.id
	ev.File = t.opts.File
	ev.Mode = t.opts.Mode
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	t.opts.Telemetry.Emit(ev)
}

func (t *Task) record(fn func(o *Outcome)) {
	t.mu.Lock()
	fn(&t.outcome)
	t.mu.Unlock()
}

// finish closes any channel left open so consumers never wait forever.
func (t *Task) finish(reason error) {
	if t.opts.Diagnostics != nil {
		t.opts.Diagnostics.Close(reason)
	}
	if t.opts.Processes != nil {
		t.opts.Processes.Close(reason)
	}
	t.setState(StateComplete)
	out := t.Outcome()
	meta := map[string]interface{}{"ran": out.Ran, "diagnostics": out.Diagnostics}
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	t.emit(Event{Type: EventTaskFinish, ExitCode: out.CompileExitCode, Message: msg, Metadata: meta})
	close(t.done)
}

// abort completes a task that never got to run.
func (t *Task) abort(err error) {
	t.record(func(o *Outcome) {
		o.CompileExitCode = -1
		o.Err = err
	})
	t.finish(err)
}

func (t *Task) execute(ctx context.Context) {
	logger := t.opts.Logger.With("task_id", t.id, "file", t.opts.File, "mode", t.opts.Mode)
	t.emit(Event{Type: EventTaskStart})

	t.setState(StateBuildingCommand)
	plan := t.planCompile(logger)
	t.record(func(o *Outcome) { o.CompileCommand = plan.command })

	t.setState(StateRunning)
	var collector *LineCollector
	stderr := t.opts.Stderr
	if t.opts.Diagnostics != nil && t.opts.Parser != nil {
		collector = &LineCollector{}
		stderr = TeeSink(stderr, collector.Sink())
	}
	proc, err := t.opts.Runner.Start(ctx, CommandRequest{
		Command: plan.command,
		Stdout:  t.opts.Stdout,
		Stderr:  stderr,
	})
	if err != nil {
		logger.Error("compile spawn failed", "command", plan.command.String(), "error", err)
		t.emit(Event{Type: EventSpawnFailed, Tool: ToolCompile.String(), ExitCode: -1, Message: err.Error()})
		t.record(func(o *Outcome) {
			o.CompileExitCode = -1
			o.Err = err
		})
		t.finish(fmt.Errorf("spawn compiler: %w", err))
		return
	}

	exitCode, waitErr := proc.Wait()
	if waitErr != nil {
		logger.Error("compile wait failed", "pid", proc.Pid(), "error", waitErr)
		if exitCode == 0 {
			exitCode = -1
		}
	}
	t.record(func(o *Outcome) {
		o.CompileExitCode = exitCode
		o.Err = waitErr
	})
	t.emit(Event{Type: EventCompileExit, Tool: ToolCompile.String(), ExitCode: exitCode})
	logger.Info("compile finished", "exit_code", exitCode)

	if t.opts.Diagnostics != nil {
		n := 0
		if collector != nil {
			for _, rec := range t.opts.Parser.Parse(collector.Lines()) {
				t.opts.Diagnostics.Put(rec)
				n++
			}
		}
		t.record(func(o *Outcome) { o.Diagnostics = n })
		t.opts.Diagnostics.Close(nil)
	}

	if t.opts.Mode != ModeCompileAndRun {
		t.finish(nil)
		return
	}
	if waitErr != nil || !t.opts.RunPolicy(exitCode) {
		logger.Info("run skipped", "exit_code", exitCode)
		t.finish(&CompileError{ExitCode: exitCode})
		return
	}

	runCmd := t.builder.Build(t.runConfiguration(plan))
	t.record(func(o *Outcome) { o.RunCommand = &runCmd })
	runProc, err := t.opts.Runner.Start(ctx, CommandRequest{
		Command: runCmd,
		Stdout:  t.opts.RunStdout,
		Stderr:  t.opts.RunStderr,
	})
	if err != nil {
		logger.Error("run spawn failed", "command", runCmd.String(), "error", err)
		t.emit(Event{Type: EventSpawnFailed, Tool: ToolRun.String(), ExitCode: exitCode, Message: err.Error()})
		t.record(func(o *Outcome) { o.Err = err })
		t.finish(fmt.Errorf("spawn program: %w", err))
		return
	}
	t.record(func(o *Outcome) { o.Ran = true })
	t.emit(Event{Type: EventRunSpawn, Tool: ToolRun.String(), Metadata: map[string]interface{}{"pid": runProc.Pid()}})
	logger.Info("program started", "pid", runProc.Pid(), "command", runCmd.String())
	if t.opts.Processes != nil {
		t.opts.Processes.Put(runProc)
	}
	t.finish(nil)
}

// compilePlan is the resolved compile step, reused when deriving the run step.
type compilePlan struct {
	command Command
	// relTarget is the file relative to the project root, empty in bare mode.
	relTarget string
	absFile   string
}

func (t *Task) planCompile(logger *slog.Logger) compilePlan {
	absFile, err := filepath.Abs(t.opts.File)
	if err != nil {
		absFile = t.opts.File
	}
	project := t.opts.Project
	if project == nil {
		cfg := NewCompileConfiguration(
			t.builder.Platform.ToolPath(t.opts.Toolchain, ToolCompile.Executable()),
			filepath.Dir(absFile), "", "", nil, absFile,
		)
		return compilePlan{command: t.builder.Build(cfg), absFile: absFile}
	}
	target := absFile
	rel, err := project.RelativeTarget(absFile)
	if err != nil {
		logger.Warn("file outside project, compiling by absolute path", "error", err)
		rel = ""
	} else {
		target = rel
	}
	cfg := NewCompileConfiguration(
		t.builder.Platform.ToolPath(project.ToolchainRoot(), ToolCompile.Executable()),
		project.Root(),
		project.OutputDirectory(),
		project.SourceRoot(),
		project.Libraries(),
		target,
	)
	return compilePlan{command: t.builder.Build(cfg), relTarget: rel, absFile: absFile}
}

func (t *Task) runConfiguration(plan compilePlan) ToolConfiguration {
	project := t.opts.Project
	if project == nil || plan.relTarget == "" {
		toolchain := t.opts.Toolchain
		if project != nil {
			toolchain = project.ToolchainRoot()
		}
		return NewRunConfiguration(
			t.builder.Platform.ToolPath(toolchain, ToolRun.Executable()),
			filepath.Dir(plan.absFile), nil,
			NormalizeRunTarget("", filepath.Base(plan.absFile)), "", "",
		)
	}
	target := NormalizeRunTarget(project.relativeSourceRoot(), plan.relTarget)
	args, _ := project.RunArgumentsFor(target)
	return NewRunConfiguration(
		t.builder.Platform.ToolPath(project.ToolchainRoot(), ToolRun.Executable()),
		project.RunWorkingDirectory(),
		project.Libraries(),
		target,
		args.Program,
		args.VM,
	)
}
