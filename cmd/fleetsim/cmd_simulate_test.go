package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleetsim/pkg/agent"
	"fleetsim/pkg/config"
	"fleetsim/pkg/controller"
	"fleetsim/pkg/fleet"
)

func writeScenario(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
}

func startSimController(t *testing.T) (*controller.Controller, config.Config) {
	t.Helper()
	ctl := controller.New("127.0.0.1:0", testLogger())
	if err := ctl.Start(); err != nil {
		t.Fatalf("controller Start: %v", err)
	}
	t.Cleanup(ctl.Stop)

	cfg := config.Defaults()
	cfg.ServerAddr = ctl.Addr()
	cfg.TelemetryIntervalMs = 50
	return ctl, cfg
}

func TestSimulationReloadSpawnsAgents(t *testing.T) {
	ctl, cfg := startSimController(t)

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	writeScenario(t, path, `units:
  - id: drone_1
    x: 1
    priority: 5
  - id: drone_2
    battery: 40
`)

	sim := &simulation{
		ctl:    ctl,
		cfg:    cfg,
		logger: testLogger(),
		path:   path,
		agents: make(map[fleet.UnitID]*agent.Agent),
	}
	defer sim.stopAgents()

	if err := sim.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := sim.agentCount(); got != 2 {
		t.Fatalf("agents = %d, want 2", got)
	}
	if got := ctl.TotalUnits(); got != 2 {
		t.Errorf("registered units = %d, want 2", got)
	}
}

func TestSimulationReloadIsIncremental(t *testing.T) {
	ctl, cfg := startSimController(t)

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	writeScenario(t, path, "units:\n  - id: drone_1\n")

	sim := &simulation{
		ctl:    ctl,
		cfg:    cfg,
		logger: testLogger(),
		path:   path,
		agents: make(map[fleet.UnitID]*agent.Agent),
	}
	defer sim.stopAgents()

	if err := sim.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	first := sim.agents["drone_1"]

	writeScenario(t, path, "units:\n  - id: drone_1\n  - id: drone_2\n")
	if err := sim.reload(); err != nil {
		t.Fatalf("second reload: %v", err)
	}

	if got := sim.agentCount(); got != 2 {
		t.Fatalf("agents = %d, want 2", got)
	}
	if sim.agents["drone_1"] != first {
		t.Error("existing agent was replaced on reload")
	}
}

func TestSimulationReloadBadFile(t *testing.T) {
	ctl, cfg := startSimController(t)

	sim := &simulation{
		ctl:    ctl,
		cfg:    cfg,
		logger: testLogger(),
		path:   filepath.Join(t.TempDir(), "absent.yaml"),
		agents: make(map[fleet.UnitID]*agent.Agent),
	}
	if err := sim.reload(); err == nil {
		t.Fatal("expected error for missing scenario")
	}
}

func TestSimulationStopAgents(t *testing.T) {
	_, cfg := startSimController(t)

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	writeScenario(t, path, "units:\n  - id: drone_1\n")

	sim := &simulation{
		ctl:    nil,
		cfg:    cfg,
		logger: testLogger(),
		path:   path,
		agents: make(map[fleet.UnitID]*agent.Agent),
	}
	a := agent.New("drone_1", cfg.ServerAddr, 50*time.Millisecond, testLogger())
	if err := a.Start(); err != nil {
		t.Fatalf("agent Start: %v", err)
	}
	sim.agents["drone_1"] = a

	sim.stopAgents()
	if a.Running() {
		t.Error("agent still running after stopAgents")
	}
}
