package cmd

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/topicbatch/internal/config"
)

const redacted = "REDACTED"

// newConfigCmd creates the 'config' subcommand, which prints the effective
// configuration after defaults, the config file and the environment merge.
func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Prints the effective configuration as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.DB.DSN != "" {
				cfg.DB.DSN = redacted
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return nil
		},
	}
}
