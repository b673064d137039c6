package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/jbuild/cmd/internal/projectcfg"
	"github.com/lexcodex/jbuild/framework"
	"github.com/lexcodex/jbuild/persistence"
)

// openRunArgsStore opens the registry together with the project snapshot
// needed to map a source path onto the key the run step looks up.
func openRunArgsStore() (*persistence.FileRunArgsStore, *framework.ProjectContext, error) {
	root, err := requireProjectRoot()
	if err != nil {
		return nil, nil, err
	}
	project, err := projectcfg.OpenContext(root, resolveToolchain)
	if err != nil {
		return nil, nil, err
	}
	store, err := persistence.NewFileRunArgsStore(projectcfg.ConfigDir(root))
	if err != nil {
		return nil, nil, err
	}
	return store, project, nil
}

// runTargetArg accepts either a source path such as src/com/x/Main.java or a
// run target such as com/x/Main.
func runTargetArg(project *framework.ProjectContext, arg string) (string, error) {
	target, err := project.RunTarget(arg)
	if err != nil {
		return "", fmt.Errorf("run target %q: %w", arg, err)
	}
	return target, nil
}

func newArgsCmd() *cobra.Command {
	argsCmd := &cobra.Command{
		Use:   "args",
		Short: "Manage program and VM arguments registered per run target",
	}

	var program, vm string
	setCmd := &cobra.Command{
		Use:   "set TARGET",
		Short: "Register arguments for a run target such as com/x/Main",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, project, err := openRunArgsStore()
			if err != nil {
				return err
			}
			target, err := runTargetArg(project, args[0])
			if err != nil {
				return err
			}
			return store.Set(cmd.Context(), target, framework.RunArguments{Program: program, VM: vm})
		},
	}
	setCmd.Flags().StringVar(&program, "program", "", "Program arguments")
	setCmd.Flags().StringVar(&vm, "vm", "", "JVM arguments")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered run targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openRunArgsStore()
			if err != nil {
				return err
			}
			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tprogram=%q\tvm=%q\t%s\n", entry.Target, entry.Program, entry.VM, entry.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete TARGET",
		Short: "Remove the arguments registered for a run target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, project, err := openRunArgsStore()
			if err != nil {
				return err
			}
			target, err := runTargetArg(project, args[0])
			if err != nil {
				return err
			}
			return store.Delete(cmd.Context(), target)
		},
	}

	argsCmd.AddCommand(setCmd, listCmd, deleteCmd)
	return argsCmd
}
