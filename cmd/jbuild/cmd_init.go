package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lexcodex/jbuild/cmd/internal/projectcfg"
)

func newInitCmd() *cobra.Command {
	var meta projectcfg.Metadata
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write project metadata for --project (default: current directory)",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := flagProject
			if root == "" {
				root = "."
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			if _, found, err := projectcfg.Load(root); err != nil {
				return err
			} else if found && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", projectcfg.MetadataFile(root))
			}
			for _, dir := range []string{meta.SourcePath, meta.OutputDir} {
				if dir == "" || filepath.IsAbs(dir) {
					continue
				}
				if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
					return err
				}
			}
			if err := meta.Validate(root); err != nil {
				return err
			}
			if err := projectcfg.Save(root, &meta); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", projectcfg.MetadataFile(root))
			return nil
		},
	}
	cmd.Flags().StringVar(&meta.SourcePath, "src", "src", "Source root, relative to the project")
	cmd.Flags().StringVar(&meta.OutputDir, "out", "bin", "Class output directory, relative to the project")
	cmd.Flags().StringVar(&meta.JDK, "with-jdk", "", "JDK root to record in the metadata")
	cmd.Flags().StringSliceVar(&meta.InternalLibraries, "lib", nil, "Library path inside the project (repeatable)")
	cmd.Flags().StringSliceVar(&meta.ExternalLibraries, "ext-lib", nil, "Absolute library path outside the project (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing metadata")
	return cmd
}
