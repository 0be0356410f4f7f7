package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"profilewatch/internal/app"
)

func newExportCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tracked contacts as vCards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), false, func(a *app.App) error {
				var w io.Writer = cmd.OutOrStdout()
				if outPath != "" {
					f, err := os.Create(outPath)
					if err != nil {
						return fmt.Errorf("creating export file: %w", err)
					}
					defer f.Close()
					w = f
				}
				n, err := a.ExportVCards(cmd.Context(), w)
				if err != nil {
					return fmt.Errorf("exporting: %w", err)
				}
				if outPath != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Exported %d contacts to %s\n", n, outPath)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}
