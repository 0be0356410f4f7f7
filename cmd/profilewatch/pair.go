package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"profilewatch/internal/app"
)

func newPairCmd() *cobra.Command {
	var savePath string

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Link this tool as a WhatsApp device by scanning a QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), false, func(a *app.App) error {
				if err := a.Pair(cmd.Context(), cmd.OutOrStdout(), savePath); err != nil {
					return fmt.Errorf("pairing: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Paired as %s\n", a.Client.GetJID())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&savePath, "png", "", "Also write each QR code to this PNG file")
	return cmd
}
