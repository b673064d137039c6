package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/jbuild/cmd/internal/projectcfg"
	"github.com/lexcodex/jbuild/persistence"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [FILE]",
		Short: "Show recent builds recorded for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := requireProjectRoot()
			if err != nil {
				return err
			}
			store, err := persistence.NewHistoryStore(projectcfg.HistoryFile(root))
			if err != nil {
				return err
			}
			defer store.Close()
			file := ""
			if len(args) > 0 {
				if file, err = filepath.Abs(args[0]); err != nil {
					return err
				}
			}
			records, err := store.Recent(cmd.Context(), file, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			style := newPalette(out)
			for _, rec := range records {
				status := style.success.Render("ok  ")
				if !rec.Succeeded() {
					status = style.failure.Render("FAIL")
				}
				fmt.Fprintf(out, "%s %s %-15s exit=%-3d ran=%-5t diagnostics=%d %s\n",
					rec.FinishedAt.Local().Format(time.DateTime), status, rec.Mode,
					rec.CompileExitCode, rec.Ran, rec.Diagnostics, rec.File)
				if rec.Error != "" {
					fmt.Fprintln(out, style.dim.Render("    "+rec.Error))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of builds to show")
	return cmd
}
