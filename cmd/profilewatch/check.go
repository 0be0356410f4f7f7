package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"profilewatch/internal/app"
	"profilewatch/internal/service/monitor"
	"profilewatch/internal/service/notify"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [phone]",
		Short: "Run one check pass for a contact, or for every contact",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			return withApp(ctx, true, func(a *app.App) error {
				if len(args) == 1 {
					res, err := a.Check(ctx, args[0])
					if err != nil {
						return err
					}
					printResult(out, res)
					return nil
				}

				reports, err := a.Monitor.CheckAll(ctx)
				if err != nil {
					return err
				}
				failed := 0
				for _, r := range reports {
					if r.Err != nil {
						failed++
						fmt.Fprintf(out, "%s: error: %v\n", r.ContactID, r.Err)
						continue
					}
					printResult(out, r.Result)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d checks failed", failed, len(reports))
				}
				return nil
			})
		},
	}
}

func printResult(out io.Writer, res *monitor.Result) {
	fmt.Fprintf(out, "%s: avatar %s, status %s\n", res.ContactID, res.Avatar, res.Status)
	for _, evt := range res.Events {
		fmt.Fprintf(out, "  %s\n", notify.Format(evt))
	}
}
