package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagProject   string
	flagJDK       string
	flagVerbose   bool
	flagTelemetry string
	flagMetrics   string
)

// exitError carries a child process exit status out of a command without
// printing anything further.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jbuild",
		Short:         "Compile and run Java sources with or without project metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagProject, "project", "", "Project root (default: nearest directory holding .jbuild/project.yaml)")
	root.PersistentFlags().StringVar(&flagJDK, "jdk", "", "JDK root overriding project metadata and JAVA_HOME")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagTelemetry, "telemetry", "", "Append task events as JSON lines to this file")
	root.PersistentFlags().StringVar(&flagMetrics, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")

	root.AddCommand(newInitCmd(), newCompileCmd(), newRunCmd(), newArgsCmd(), newHistoryCmd())
	return root
}
