package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"fleetsim/pkg/config"
	"fleetsim/pkg/controller"
	"fleetsim/pkg/dispatch"
	"fleetsim/pkg/eventlog"
	"fleetsim/pkg/logging"
	"fleetsim/pkg/observer"
)

// newControllerCmd creates the "fleetsim controller" subcommand.
func newControllerCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Run a fleet controller",
		Long:  "Starts a controller listening for unit agents.\nRuns until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			logger, logCloser, err := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFile)
			if err != nil {
				return err
			}
			defer func() { _ = logCloser.Close() }()

			ctl, cleanup, err := buildController(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := ctl.Start(); err != nil {
				return err
			}
			defer ctl.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "controller listening on %s\n", ctl.Addr())
			<-cmd.Context().Done()
			fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	return cmd
}

// loadConfig reads the TOML config at path, or returns defaults when
// path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

// buildController assembles a controller with logging observers and,
// when cfg.EventDB is set, a SQLite event recorder. The returned
// cleanup closes the event store.
func buildController(cfg config.Config, logger *slog.Logger) (*controller.Controller, func(), error) {
	ctl := controller.New(cfg.ListenAddr, logger)
	ctl.SetStrategy(dispatch.StrategyKind(cfg.Strategy))
	ctl.Telemetry.Subscribe(&observer.LoggingTelemetryObserver{Logger: logger})
	ctl.Commands.Subscribe(&observer.LoggingCommandObserver{Logger: logger})

	cleanup := func() {}
	if cfg.EventDB != "" {
		store, err := eventlog.Open(cfg.EventDB)
		if err != nil {
			return nil, nil, fmt.Errorf("open event log: %w", err)
		}
		rec := eventlog.NewRecorder(store, logger)
		ctl.Telemetry.Subscribe(rec)
		ctl.Commands.Subscribe(rec)
		cleanup = func() { _ = store.Close() }
	}

	return ctl, cleanup, nil
}
