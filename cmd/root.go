// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "A concurrent bulk fetcher for activation secret codes.",
		Long: `harvester walks a list of numeric activation identifiers, fetches one
page per identifier with bounded concurrency, extracts the secret code and
instruction card, and retries rate-limited or failed identifiers in
cooldown-separated rounds until every identifier settles.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.AddCommand(newHarvestCmd())

	return cmd
}

// Execute is the main entry point. It installs signal handling so an
// interrupt cancels the run between fetches and during cooldowns.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		os.Exit(1)
	}
}
