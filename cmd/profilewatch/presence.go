package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"profilewatch/internal/app"
)

func newPresenceCmd() *cobra.Command {
	var duration, interval time.Duration

	cmd := &cobra.Command{
		Use:   "presence <phone>",
		Short: "Sample a contact's online status for a fixed window",
		Long: "Polls the online/offline signal every interval until duration has elapsed. " +
			"Readings taken while the signal is unknown are not stored.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, true, func(a *app.App) error {
				sum, err := a.SamplePresence(ctx, args[0], duration, interval)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d ticks, %d online, %d offline, %d unknown (%s)\n",
					sum.ContactID, sum.Ticks, sum.Online, sum.Offline, sum.Unknown,
					sum.Ended.Sub(sum.Started).Round(time.Second))
				return nil
			})
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", time.Minute, "How long to sample")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 5*time.Second, "Time between readings")
	return cmd
}
