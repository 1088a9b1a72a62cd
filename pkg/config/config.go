// Package config loads the simulator's TOML configuration and YAML
// fleet scenario files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"fleetsim/pkg/fleet"
)

// Config holds controller and agent settings, loaded from TOML.
type Config struct {
	// ListenAddr is where the controller binds, e.g. ":7700".
	ListenAddr string `toml:"listen_addr"`

	// ServerAddr is where agents connect, e.g. "127.0.0.1:7700".
	ServerAddr string `toml:"server_addr"`

	// Strategy selects the dispatch policy: round_robin, priority,
	// or broadcast.
	Strategy string `toml:"strategy"`

	// TelemetryIntervalMs is how often agents report, in milliseconds.
	TelemetryIntervalMs int `toml:"telemetry_interval_ms"`

	// LogLevel is debug, info, warning, or error.
	LogLevel string `toml:"log_level"`

	// LogFile receives a copy of the log output when non-empty.
	LogFile string `toml:"log_file"`

	// EventDB is the SQLite event log path; empty disables recording.
	EventDB string `toml:"event_db"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		ListenAddr:          ":7700",
		ServerAddr:          "127.0.0.1:7700",
		Strategy:            "round_robin",
		TelemetryIntervalMs: 1000,
		LogLevel:            "info",
	}
}

// Load reads a TOML config file, filling unset fields from Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// TelemetryInterval returns the agent reporting period.
func (c Config) TelemetryInterval() time.Duration {
	if c.TelemetryIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(c.TelemetryIntervalMs) * time.Millisecond
}

// Scenario describes a simulated fleet, loaded from YAML.
type Scenario struct {
	Units []ScenarioUnit `yaml:"units"`
}

// ScenarioUnit defines one simulated unit.
type ScenarioUnit struct {
	ID       string  `yaml:"id"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Z        float64 `yaml:"z"`
	Priority int     `yaml:"priority"`
	Battery  float64 `yaml:"battery"`

	// IntervalMs overrides the configured telemetry interval for this
	// unit when positive.
	IntervalMs int `yaml:"interval_ms"`
}

// Position returns the unit's starting position.
func (u ScenarioUnit) Position() fleet.Position {
	return fleet.Position{X: u.X, Y: u.Y, Z: u.Z}
}

// Interval returns the unit's reporting period, falling back to the
// config-wide default.
func (u ScenarioUnit) Interval(fallback time.Duration) time.Duration {
	if u.IntervalMs > 0 {
		return time.Duration(u.IntervalMs) * time.Millisecond
	}
	return fallback
}

// LoadScenario reads a YAML scenario file. Units without an id are
// rejected; a missing battery defaults to full.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	for i := range sc.Units {
		if sc.Units[i].ID == "" {
			return Scenario{}, fmt.Errorf("scenario unit %d has no id", i)
		}
		if sc.Units[i].Battery == 0 {
			sc.Units[i].Battery = 100
		}
	}
	return sc, nil
}
