package controller

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"fleetsim/pkg/agent"
	"fleetsim/pkg/dispatch"
	"fleetsim/pkg/fleet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startController(t *testing.T) *Controller {
	t.Helper()
	c := New("127.0.0.1:0", testLogger())
	c.SetDispatchInterval(10 * time.Millisecond)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

func startAgent(t *testing.T, c *Controller, id fleet.UnitID) *agent.Agent {
	t.Helper()
	a := agent.New(id, c.Addr(), 20*time.Millisecond, testLogger())
	if err := a.Start(); err != nil {
		t.Fatalf("agent %s: %v", id, err)
	}
	t.Cleanup(a.Stop)
	return a
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestControllerLifecycle(t *testing.T) {
	c := New("127.0.0.1:0", testLogger())
	if c.Running() || c.ConnectedUnits() != 0 || c.TotalUnits() != 0 {
		t.Error("new controller should be inert and empty")
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	c.Stop()
	c.Stop() // idempotent
	if c.Running() {
		t.Error("controller still running after Stop")
	}
}

func TestControllerUnitRegistration(t *testing.T) {
	c := New("127.0.0.1:0", testLogger())
	c.RegisterUnit("u1", fleet.Position{X: 10, Y: 20, Z: 30})
	c.RegisterUnit("u2", fleet.Position{})
	if c.TotalUnits() != 2 {
		t.Fatalf("total = %d, want 2", c.TotalUnits())
	}
	c.UnregisterUnit("u1")
	if c.TotalUnits() != 1 {
		t.Errorf("total = %d, want 1", c.TotalUnits())
	}
}

func TestControllerUnitStatuses(t *testing.T) {
	c := New("127.0.0.1:0", testLogger())
	c.RegisterUnit("u1", fleet.Position{X: 5, Y: 10, Z: 15})
	lines := c.UnitStatuses()
	if len(lines) != 1 {
		t.Fatalf("lines = %v", lines)
	}
	if lines[0] != "u1: idle at (5, 10, 15)" {
		t.Errorf("line = %q", lines[0])
	}
}

func TestTelemetryRegistersUnitAndSession(t *testing.T) {
	c := startController(t)

	var mu sync.Mutex
	var seen []fleet.UnitID
	c.Telemetry.Subscribe(telemetryFunc(func(data fleet.TelemetryData) {
		mu.Lock()
		seen = append(seen, data.UnitID)
		mu.Unlock()
	}))

	startAgent(t, c, "scout_1")

	waitFor(t, "unit registration via telemetry", func() bool { return c.TotalUnits() == 1 })
	waitFor(t, "telemetry notification", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	})

	reg := c.Registry()
	if reg.Get("scout_1") == nil {
		t.Fatal("unit not in registry")
	}
	if reg.OnlineCount() != 1 {
		t.Errorf("online = %d, want 1", reg.OnlineCount())
	}
}

func TestCommandDispatchRoundTrip(t *testing.T) {
	c := startController(t)

	completed := make(chan string, 4)
	c.Commands.Subscribe(commandFunc{
		sent: func(cmd *fleet.Command) {},
		done: func(id string, success bool) {
			if success {
				completed <- id
			}
		},
	})

	a := startAgent(t, c, "scout_1")
	waitFor(t, "unit online", func() bool { return len(c.Registry().OnlineUnits()) == 1 })

	dest := fleet.Position{X: 100, Y: 200, Z: 300}
	c.SendMoveCommand("scout_1", dest)

	select {
	case <-completed:
	case <-time.After(3 * time.Second):
		t.Fatal("command never acknowledged")
	}
	waitFor(t, "agent applied move", func() bool { return a.Executor().Position() == dest })
}

func TestShutdownPreemptsQueuedCommands(t *testing.T) {
	c := New("127.0.0.1:0", testLogger())

	// Queue before the dispatch loop runs so ordering is observable.
	c.SendMoveCommand("u1", fleet.Position{X: 1})
	c.SendAlertCommand("u1", "hot", 2)
	c.SendShutdownCommand("u1")

	if c.PendingCommands() != 3 {
		t.Fatalf("pending = %d, want 3", c.PendingCommands())
	}
	first, ok := c.queue.Dequeue()
	if !ok || first.Type != fleet.CommandShutdown {
		t.Errorf("first = %+v, want shutdown", first)
	}
	second, _ := c.queue.Dequeue()
	if second.Type != fleet.CommandAlert {
		t.Errorf("second = %+v, want alert", second)
	}
}

func TestSetStrategyKeepsPriorityTable(t *testing.T) {
	c := New("127.0.0.1:0", testLogger())
	c.SetUnitPriority("u1", 10)
	c.SetStrategy(dispatch.KindBroadcast)
	c.SetStrategy(dispatch.KindPriority)

	c.mu.Lock()
	strategy := c.strategy
	c.mu.Unlock()
	got := strategy.SelectTargets([]fleet.UnitID{"u2", "u1"}, fleet.NewMoveCommand("u1", fleet.Position{}))
	if len(got) != 1 || got[0] != "u1" {
		t.Errorf("targets = %v, want [u1]", got)
	}
}

// --- observer adapters ---

type telemetryFunc func(fleet.TelemetryData)

func (f telemetryFunc) OnTelemetryReceived(data fleet.TelemetryData) { f(data) }

type commandFunc struct {
	sent func(*fleet.Command)
	done func(string, bool)
}

func (c commandFunc) OnCommandSent(cmd *fleet.Command)      { c.sent(cmd) }
func (c commandFunc) OnCommandCompleted(id string, ok bool) { c.done(id, ok) }
