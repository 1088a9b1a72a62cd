package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"fleetsim/pkg/agent"
	"fleetsim/pkg/config"
	"fleetsim/pkg/controller"
	"fleetsim/pkg/fleet"
	"fleetsim/pkg/logging"
)

const (
	// scenarioFallbackPoll is the safety-net poll interval when the
	// fsnotify watch is active.
	scenarioFallbackPoll = 60 * time.Second

	// scenarioPollInterval is the pure-polling interval when fsnotify
	// is unavailable.
	scenarioPollInterval = 10 * time.Second
)

// newSimulateCmd creates the "fleetsim simulate" subcommand.
func newSimulateCmd() *cobra.Command {
	var (
		configPath   string
		scenarioPath string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a controller plus a scenario's agents in-process",
		Long: `Starts a controller and one agent per unit in the scenario file.
The scenario file is watched for changes; units added to it while the
simulation runs are spawned on the fly.`,
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

			sim := &simulation{
				ctl:    ctl,
				cfg:    cfg,
				logger: logger,
				path:   scenarioPath,
				agents: make(map[fleet.UnitID]*agent.Agent),
			}
			defer sim.stopAgents()

			if err := sim.reload(); err != nil {
				return err
			}
			go sim.watchScenario(cmd.Context())

			fmt.Fprintf(cmd.OutOrStdout(), "simulating %d units against %s\n",
				sim.agentCount(), cfg.ServerAddr)
			<-cmd.Context().Done()
			fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "scenario.yaml", "path to YAML scenario file")
	return cmd
}

// simulation tracks the in-process agents spawned from a scenario file.
type simulation struct {
	ctl    *controller.Controller
	cfg    config.Config
	logger *slog.Logger
	path   string

	mu     sync.Mutex
	agents map[fleet.UnitID]*agent.Agent
}

// reload re-reads the scenario file and spawns agents for units that
// are not running yet. Units removed from the file keep running; the
// controller marks them offline once their telemetry goes stale.
func (s *simulation) reload() error {
	sc, err := config.LoadScenario(s.path)
	if err != nil {
		return err
	}

	for _, u := range sc.Units {
		id := fleet.UnitID(u.ID)

		s.mu.Lock()
		_, exists := s.agents[id]
		s.mu.Unlock()
		if exists {
			continue
		}

		s.ctl.RegisterUnit(id, u.Position())
		if u.Priority != 0 {
			s.ctl.SetUnitPriority(id, u.Priority)
		}

		a := agent.New(id, s.cfg.ServerAddr, u.Interval(s.cfg.TelemetryInterval()), s.logger)
		a.Executor().SetPosition(u.Position())
		a.Executor().SetBatteryLevel(u.Battery)
		if err := a.Start(); err != nil {
			s.logger.Error("spawn agent", "unit", id, "error", err)
			continue
		}

		s.mu.Lock()
		s.agents[id] = a
		s.mu.Unlock()
		s.logger.Info("agent spawned", "unit", id)
	}

	return nil
}

// watchScenario watches the scenario file for changes and reloads on
// each write. Falls back to polling as a safety net, or entirely when
// fsnotify is unavailable.
func (s *simulation) watchScenario(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.watchScenarioPoll(ctx)
		return
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: editors replace files on
	// save, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		s.watchScenarioPoll(ctx)
		return
	}

	fallbackTicker := time.NewTicker(scenarioFallbackPoll)
	defer fallbackTicker.Stop()

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-watcher.Events:
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if err := s.reload(); err != nil {
				s.logger.Warn("scenario reload", "error", err)
			}
		case err := <-watcher.Errors:
			if err != nil {
				s.logger.Warn("scenario watcher", "error", err)
			}
		case <-fallbackTicker.C:
			if err := s.reload(); err != nil {
				s.logger.Warn("scenario reload", "error", err)
			}
		}
	}
}

// watchScenarioPoll is the fallback loop when fsnotify is unavailable.
func (s *simulation) watchScenarioPoll(ctx context.Context) {
	ticker := time.NewTicker(scenarioPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.reload(); err != nil {
				s.logger.Warn("scenario reload", "error", err)
			}
		}
	}
}

func (s *simulation) agentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.agents)
}

func (s *simulation) stopAgents() {
	s.mu.Lock()
	agents := make([]*agent.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	s.mu.Unlock()

	for _, a := range agents {
		a.Stop()
	}
}
