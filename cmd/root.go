// Package cmd defines the CLI commands for the topicbatch executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/topicbatch/internal/config"
	"github.com/JakeFAU/topicbatch/internal/server"
)

var cfgFile string

// Runner is the part of the application the run command drives.
type Runner interface {
	Run(ctx context.Context) error
}

// newApp is the application factory. Tests replace it to avoid building the
// real pipeline.
var newApp = func(ctx context.Context, cfg config.Config) (Runner, error) {
	return server.Build(ctx, cfg)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topicbatch",
		Short: "Per-topic message batching pipeline.",
		Long: `topicbatch accepts messages on named topics, groups them into batches per
topic by size or timeout, and pushes each batch downstream through a single
shared sink. On shutdown every accepted message is flushed before exit.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env vars prefixed TOPICBATCH_ override it)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newConfigCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "topicbatch: %v\n", err)
		os.Exit(1)
	}
}
