package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lexcodex/jbuild/cmd/internal/projectcfg"
	"github.com/lexcodex/jbuild/framework"
	"github.com/lexcodex/jbuild/persistence"
)

// session bundles what one CLI invocation shares across its tasks.
type session struct {
	root      string
	project   *framework.ProjectContext
	logger    *slog.Logger
	registry  *prometheus.Registry
	telemetry framework.Telemetry
	closers   []func() error
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openSession resolves the project for file (or --project) and wires the
// telemetry sinks. Without project metadata the session runs in bare mode.
func openSession(con *console, file string) (*session, error) {
	s := &session{
		logger:   newLogger(con.logWriter(), flagVerbose),
		registry: prometheus.NewRegistry(),
	}
	root := flagProject
	if root == "" && file != "" {
		if found, ok := projectcfg.FindRoot(file); ok {
			root = found
		}
	}
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		project, err := projectcfg.OpenContext(abs, resolveToolchain)
		if err != nil {
			return nil, err
		}
		if project != nil {
			s.root = abs
			s.project = project
		}
	}

	metrics, err := framework.NewMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	sinks := []framework.Telemetry{framework.LoggerTelemetry{Logger: s.logger}, metrics}
	if s.root != "" {
		store, err := persistence.NewHistoryStore(projectcfg.HistoryFile(s.root))
		if err != nil {
			return nil, fmt.Errorf("open build history: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		sinks = append(sinks, persistence.NewHistoryTelemetry(store, s.logger))
	}
	if flagTelemetry != "" {
		sink, err := framework.NewJSONFileTelemetry(flagTelemetry)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("open telemetry file: %w", err)
		}
		s.closers = append(s.closers, sink.Close)
		sinks = append(sinks, sink)
	}
	s.telemetry = framework.MultiplexTelemetry{Sinks: sinks}
	s.logger.Debug("session opened", "project", s.root, "toolchain", s.toolchain())
	return s, nil
}

// resolveToolchain lets --jdk win over project metadata and JAVA_HOME.
func resolveToolchain(cfg framework.ProjectConfig) string {
	if flagJDK != "" {
		return flagJDK
	}
	return framework.DefaultToolchainResolver(cfg)
}

func (s *session) toolchain() string {
	if s.project != nil {
		return s.project.ToolchainRoot()
	}
	return resolveToolchain(framework.ProjectConfig{})
}

func (s *session) taskOptions(file string) framework.TaskOptions {
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	return framework.TaskOptions{
		File:      file,
		Project:   s.project,
		Toolchain: s.toolchain(),
		Telemetry: s.telemetry,
		Logger:    s.logger,
	}
}

func (s *session) close() error {
	var errs []error
	if flagMetrics != "" {
		if err := prometheus.WriteToTextfile(flagMetrics, s.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// requireProjectRoot returns the project root for commands that only make
// sense inside a project.
func requireProjectRoot() (string, error) {
	root := flagProject
	if root == "" {
		found, ok := projectcfg.FindRoot(".")
		if !ok {
			return "", errors.New("no project found; run jbuild init or pass --project")
		}
		root = found
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if _, found, err := projectcfg.Load(abs); err != nil {
		return "", err
	} else if !found {
		return "", fmt.Errorf("%s has no %s", abs, filepath.Join(".jbuild", "project.yaml"))
	}
	return abs, nil
}
