package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fleetsim/pkg/agent"
	"fleetsim/pkg/fleet"
	"fleetsim/pkg/logging"
)

// newAgentCmd creates the "fleetsim agent" subcommand.
func newAgentCmd() *cobra.Command {
	var (
		configPath string
		id         string
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run a single unit agent",
		Long:  "Connects one simulated unit to a controller and reports\ntelemetry until interrupted.",
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

			if id == "" {
				id = defaultAgentID()
			}

			a := agent.New(fleet.UnitID(id), cfg.ServerAddr, cfg.TelemetryInterval(), logger)
			if err := a.Start(); err != nil {
				return fmt.Errorf("start agent: %w", err)
			}
			defer a.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "agent %s connected to %s\n", id, cfg.ServerAddr)
			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	cmd.Flags().StringVar(&id, "id", "", "unit id (default agent_<random>)")
	return cmd
}

// defaultAgentID generates an id like "agent_1a2b3c4d" for agents
// started without an explicit --id.
func defaultAgentID() string {
	return "agent_" + uuid.NewString()[:8]
}
