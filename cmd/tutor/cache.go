package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tutor/pkg/cli"
)

var cacheFlags struct {
	olderThan time.Duration
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the fallback reply cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached replies older than a cutoff",
	Long: `Delete cached replies older than a cutoff, once. The running server
purges on content.purge_schedule; use this for ad-hoc cleanup.`,
	Example: `  # Purge entries older than content.retention
  tutor cache purge

  # Purge entries older than three days
  tutor cache purge --older-than 72h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		olderThan := cacheFlags.olderThan
		if olderThan <= 0 {
			olderThan = cfg.Content.Retention
		}

		cache, err := openCache(cfg, commandLogger(cmd))
		if err != nil {
			return cli.NewCommandError("cache purge", err)
		}
		defer cache.Close()

		n, err := cache.Purge(cmd.Context(), time.Now().Add(-olderThan))
		if err != nil {
			return cli.NewCommandError("cache purge", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Purged %d cached replies older than %s\n", n, olderThan)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePurgeCmd)

	cachePurgeCmd.Flags().DurationVar(&cacheFlags.olderThan, "older-than", 0, "age cutoff (default: content.retention)")
}
