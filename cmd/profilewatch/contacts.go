package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"profilewatch/internal/app"
	"profilewatch/internal/data/store"
)

func newTrackCmd() *cobra.Command {
	var (
		name  string
		check bool
	)

	cmd := &cobra.Command{
		Use:   "track <phone>",
		Short: "Start monitoring a phone number",
		Long:  "Resolves the number on WhatsApp, stores it and optionally records its first baseline.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, true, func(a *app.App) error {
				c, err := a.Track(ctx, args[0], name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tracking %s (%s)\n", c.Name(), c.JID)
				if !check {
					return nil
				}
				res, err := a.Check(ctx, c.Phone)
				if err != nil {
					return fmt.Errorf("first check: %w", err)
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name for the contact")
	cmd.Flags().BoolVar(&check, "check", true, "Record the baseline right away")
	return cmd
}

func newUntrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "untrack <phone>",
		Short: "Stop monitoring a phone number and delete its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(a *app.App) error {
				if err := a.Untrack(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped tracking %s\n", args[0])
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), false, func(a *app.App) error {
				contacts, err := a.Stores.Contacts.GetAll(cmd.Context())
				if err != nil {
					return fmt.Errorf("listing contacts: %w", err)
				}
				if len(contacts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No contacts tracked.")
					return nil
				}
				printContacts(cmd.OutOrStdout(), contacts)
				return nil
			})
		},
	}
}

func printContacts(out io.Writer, contacts []*store.Contact) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PHONE\tNAME\tBUSINESS\tONLINE\tLAST CHECK\tERROR")
	for _, c := range contacts {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%s\t%s\n",
			c.Phone, c.Name(), c.IsBusiness, c.IsOnline, formatTime(c.LastCheckedAt), c.LastError)
	}
	tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
