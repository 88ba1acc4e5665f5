package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/tutor/pkg/cli"
	"mercator-hq/tutor/pkg/config"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the tutor server",
	Long: `Start the tutor HTTP server with the specified configuration.

Besides serving, run starts the session sweeper, the content cache retention
schedule and, when --config names a file, a watcher that reloads the log
level and rate limit tiers when the file changes.

Examples:
  # Start with defaults and TUTOR_* environment overrides
  tutor run

  # Start with a config file
  tutor run --config /etc/tutor/tutor.yaml

  # Override listen address
  tutor run --listen 0.0.0.0:8080

  # Validate config and build every component without serving
  tutor run --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "build all components, then exit without serving")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	level := new(slog.LevelVar)
	logger, err := newLogger(cfg.Telemetry.Logging, level, nil)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}
	slog.SetDefault(logger)

	a, err := newApp(cfg, logger, level)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to release resources", "error", err)
		}
	}()

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		fmt.Fprintln(out, "✓ Components initialized")
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	sweeper := a.sessions.StartSweeper(ctx)
	defer sweeper.Stop()

	if err := a.retention.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.retention.Stop()

	if cfgFile != "" {
		watcher, err := config.NewWatcher(cfgFile, 0, a.applyReload, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		} else {
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					logger.Warn("config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	fmt.Fprintf(out, "Tutor v%s\n", Version)
	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := a.server.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}
