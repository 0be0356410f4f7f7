// Package main provides the profilewatch CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0-dev"
	configPath string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:           "profilewatch",
		Short:         "Track WhatsApp profile pictures, status texts and presence of contacts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("PROFILEWATCH_CONFIG"), "Config file (JSON or YAML)")

	rootCmd.AddCommand(
		newPairCmd(),
		newTrackCmd(),
		newUntrackCmd(),
		newListCmd(),
		newCheckCmd(),
		newPresenceCmd(),
		newHistoryCmd(),
		newExportCmd(),
		newRunCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}
