package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/topicbatch/internal/config"
)

// newRunCmd creates the 'run' subcommand, which builds the pipeline and runs
// it until SIGINT or SIGTERM.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs the batching pipeline",
		Long: `Builds the configured pushers, the topic registry and the HTTP admin server,
optionally starts the demo producer, and drains every topic on interrupt.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run pipeline: %w", err)
			}
			return nil
		},
	}
}
