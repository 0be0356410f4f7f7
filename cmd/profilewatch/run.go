package main

import (
	"github.com/spf13/cobra"

	"profilewatch/internal/app"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor all tracked contacts until interrupted",
		Long: "Checks every tracked contact on the configured interval, samples presence " +
			"when enabled and serves the status API when a listen address is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), false, func(a *app.App) error {
				return a.Run(cmd.Context())
			})
		},
	}
}
