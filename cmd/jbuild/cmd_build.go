package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lexcodex/jbuild/framework"
	"github.com/lexcodex/jbuild/lspbridge"
)

func newCompileCmd() *cobra.Command {
	var jobs int
	var lsp bool
	cmd := &cobra.Command{
		Use:   "compile FILE...",
		Short: "Compile source files without running them",
		Long: "Compile source files concurrently on a bounded worker pool. The project is resolved\n" +
			"from --project or from the first file. With --lsp, stdout carries LSP\n" +
			"textDocument/publishDiagnostics notifications instead of console output.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			con := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
			if lsp {
				con.out = cmd.ErrOrStderr()
			}
			s, err := openSession(con, args[0])
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.close(); err == nil {
					err = cerr
				}
			}()

			var publisher *lspbridge.Publisher
			if lsp {
				conn := lspbridge.NewStreamConn(ctx, os.Stdin, os.Stdout)
				defer conn.Close()
				publisher = lspbridge.NewPublisher(conn, s.logger)
			}

			orch := framework.NewOrchestrator(framework.OrchestratorConfig{
				MaxConcurrent: int64(jobs),
				Telemetry:     s.telemetry,
				Logger:        s.logger,
			})
			type submitted struct {
				file  string
				task  *framework.Task
				diags *framework.DiagnosticChannel
			}
			var all []submitted
			for _, file := range args {
				opts := s.taskOptions(file)
				opts.Stdout = con.compilerSink()
				opts.Stderr = con.compilerSink()
				var diags *framework.DiagnosticChannel
				if publisher != nil {
					diags = framework.NewDiagnosticChannel()
					opts.Diagnostics = diags
				}
				all = append(all, submitted{file: file, task: orch.CompileFile(ctx, opts), diags: diags})
			}
			if publisher != nil {
				for _, sub := range all {
					abs, _ := filepath.Abs(sub.file)
					if _, err := publisher.DrainAndPublish(ctx, abs, sub.diags); err != nil {
						s.logger.Warn("publish diagnostics failed", "file", sub.file, "error", err)
					}
				}
			}
			orch.Wait()

			failed := 0
			for _, sub := range all {
				out := sub.task.Outcome()
				switch {
				case out.Err != nil:
					failed++
					con.failure("%s: %v", sub.file, out.Err)
				case out.CompileExitCode != 0:
					failed++
					con.failure("%s: compiler exited with status %d", sub.file, out.CompileExitCode)
				default:
					con.success("%s", sub.file)
				}
				con.detail("  %s", out.CompileCommand.String())
			}
			if failed > 0 {
				return exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "Maximum concurrent compiler processes")
	cmd.Flags().BoolVar(&lsp, "lsp", false, "Publish diagnostics as LSP notifications on stdout")
	return cmd
}

func newRunCmd() *cobra.Command {
	var background bool
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Compile a source file and run it if compilation succeeds",
		Long: "Compile FILE and, when the compiler exits with status 0, run the resulting class.\n" +
			"Inside a project the run target is derived from the source path and its registered\n" +
			"arguments (see 'jbuild args') are applied. The command exits with the program's status.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			con := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
			s, err := openSession(con, args[0])
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.close(); err == nil {
					err = cerr
				}
			}()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			procs := framework.NewProcessChannel()
			opts := s.taskOptions(args[0])
			opts.Processes = procs
			opts.Stdout = con.compilerSink()
			opts.Stderr = con.compilerSink()
			opts.RunStdout = con.programStdout()
			opts.RunStderr = con.programStderr()

			if background {
				orch := framework.NewOrchestrator(framework.OrchestratorConfig{Telemetry: s.telemetry, Logger: s.logger})
				orch.CompileAndRunFile(ctx, opts)
				defer orch.Wait()
			} else {
				opts.Execution = framework.ExecutionForeground
				framework.StartCompileAndRun(ctx, opts)
			}
			return waitForProgram(ctx, con, procs)
		},
	}
	cmd.Flags().BoolVar(&background, "background", false, "Queue the task on the worker pool instead of running it inline")
	return cmd
}

// waitForProgram adopts the spawned process, terminates it on interrupt and
// converts its exit status into the command's.
func waitForProgram(ctx context.Context, con *console, procs *framework.ProcessChannel) error {
	proc, err := procs.Get(ctx)
	if err != nil {
		var compileErr *framework.CompileError
		if errors.As(err, &compileErr) {
			con.failure("%v", compileErr)
			code := compileErr.ExitCode
			if code <= 0 {
				code = 1
			}
			return exitError{code: code}
		}
		return err
	}
	con.detail("%s", proc.Command().String())

	go func() {
		select {
		case <-ctx.Done():
			if err := proc.Terminate(); err != nil {
				con.warn("terminate pid %d: %v", proc.Pid(), err)
			}
		case <-proc.Done():
		}
	}()
	code, err := proc.Wait()
	if err != nil {
		return err
	}
	if code != 0 {
		return exitError{code: code}
	}
	return nil
}
