package main

import (
	"github.com/spf13/cobra"

	"mercator-hq/tutor/pkg/cli"
	"mercator-hq/tutor/pkg/config"
)

var (
	// Global flags
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "tutor",
	Short: "Tutor - resilient chat core for the language tutor",
	Long: `Tutor serves learner chat turns and keeps them flowing when things break.

Every turn passes through a per-learner rate limiter, a bounded conversation
session, and a fallback chain: the model (retried behind a circuit breaker),
then the most recent cached reply for the lesson, then a static reply.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and TUTOR_* env vars when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
}

// loadConfig loads the .env file, then the configuration file with
// environment overrides, and installs it as the current configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		path := cfgFile
		if path == "" {
			path = envFile
		}
		return nil, cli.NewConfigError(path, err.Error())
	}
	return cfg, nil
}
