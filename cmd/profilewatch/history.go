package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"profilewatch/internal/app"
	"profilewatch/internal/profile"
	"profilewatch/internal/utils/jid"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <phone>",
		Short: "Show recorded avatar, status and presence history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			return withApp(ctx, false, func(a *app.App) error {
				phone, err := jid.NormalizePhone(args[0])
				if err != nil {
					return err
				}
				c, err := a.Stores.Contacts.Get(ctx, phone)
				if err != nil {
					return err
				}
				base, found, err := a.Stores.Baselines.Get(ctx, phone)
				if err != nil {
					return err
				}
				avatars, err := a.Stores.Baselines.AvatarHistory(ctx, phone)
				if err != nil {
					return err
				}
				statuses, err := a.Stores.Baselines.StatusHistory(ctx, phone)
				if err != nil {
					return err
				}
				samples, err := a.Stores.Baselines.PresenceLog(ctx, phone, limit)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "%s (%s)\n\n", c.Name(), c.Phone)
				if !found {
					fmt.Fprintln(out, "No baseline recorded yet.")
				} else {
					fmt.Fprintf(out, "Current avatar: %s\n", describeAvatar(base.Avatar))
					fmt.Fprintf(out, "Current status: %s\n", describeText(base.Status))
				}
				printAvatarHistory(out, avatars)
				printStatusHistory(out, statuses)
				printPresence(out, samples)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Presence samples to show")
	return cmd
}

func describeAvatar(f profile.Field[profile.Avatar]) string {
	a, ok := f.Get()
	if !ok {
		return f.State.String()
	}
	return fmt.Sprintf("%s (%s)", a.Ref, shortHash(a.Hash))
}

func describeText(f profile.Field[string]) string {
	s, ok := f.Get()
	if !ok {
		return f.State.String()
	}
	return fmt.Sprintf("%q", s)
}

func shortHash(h profile.ContentHash) string {
	if len(h) > 12 {
		return string(h[:12])
	}
	return string(h)
}

func printAvatarHistory(out io.Writer, changes []profile.AvatarChange) {
	fmt.Fprintf(out, "\nAvatar changes (%d):\n", len(changes))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range changes {
		fmt.Fprintf(tw, "  %s\treplaced %s\n", formatTime(c.ReplacedAt), describeAvatar(c.Previous))
	}
	tw.Flush()
}

func printStatusHistory(out io.Writer, changes []profile.StatusChange) {
	fmt.Fprintf(out, "\nStatus changes (%d):\n", len(changes))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range changes {
		fmt.Fprintf(tw, "  %s\t%s -> %s\n", formatTime(c.ChangedAt), describeText(c.Previous), describeText(c.Current))
	}
	tw.Flush()
}

func printPresence(out io.Writer, samples []profile.PresenceSample) {
	fmt.Fprintf(out, "\nPresence (latest %d):\n", len(samples))
	for _, s := range samples {
		fmt.Fprintf(out, "  %s  %s\n", formatTime(s.At), s.Signal)
	}
}
