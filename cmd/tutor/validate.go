package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/tutor/pkg/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration with defaults and environment overrides applied,
and report every invalid field.

Examples:
  tutor validate --config tutor.yaml
  TUTOR_RATE_LIMIT_DEFAULT_LIMIT=0 tutor validate --config tutor.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		source := cfgFile
		if source == "" {
			source = "defaults"
		}
		return cli.NewFormatter(cli.FormatText).FormatTo(cmd.OutOrStdout(), cli.Result{
			{Name: "config", Value: source},
			{Name: "status", Value: "valid"},
			{Name: "listen_address", Value: cfg.Server.ListenAddress},
			{Name: "storage", Value: fmt.Sprintf("%s (%s)", cfg.Storage.Backend, cfg.Storage.Path)},
			{Name: "content_cache", Value: cfg.Content.Backend},
			{Name: "rate_limit", Value: fmt.Sprintf("%d per %s, %d tiers", cfg.RateLimit.DefaultLimit, cfg.RateLimit.DefaultWindow, len(cfg.RateLimit.Tiers))},
			{Name: "model", Value: cfg.Completion.Model},
		})
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
