// Package agent implements the unit side of the simulator: an Executor
// that simulates a unit carrying out commands, and an Agent that owns
// the TCP client, reports telemetry, and feeds inbound commands to the
// executor.
package agent

import (
	"log/slog"
	"sync"
	"time"

	"fleetsim/pkg/fleet"
)

// Executor simulates one unit's actuators. Command execution is
// asynchronous: ExecuteCommand returns immediately and the effect lands
// after the configured execution delay.
type Executor struct {
	id     fleet.UnitID
	logger *slog.Logger

	mu            sync.Mutex
	position      fleet.Position
	status        fleet.UnitStatus
	battery       float64
	operational   bool
	busy          bool
	execDelay     time.Duration
	lastCommandID string

	wg sync.WaitGroup
}

// NewExecutor creates an executor at the origin with a full battery,
// not yet operational.
func NewExecutor(id fleet.UnitID, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		id:      id,
		logger:  logger,
		status:  fleet.StatusIdle,
		battery: 100,
	}
}

// StartOperation makes the executor accept commands.
func (e *Executor) StartOperation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.operational = true
	e.status = fleet.StatusIdle
}

// StopOperation refuses further commands and waits for the in-flight
// one to finish.
func (e *Executor) StopOperation() {
	e.mu.Lock()
	e.operational = false
	e.status = fleet.StatusOffline
	e.mu.Unlock()
	e.wg.Wait()
}

// Operational reports whether the executor accepts commands.
func (e *Executor) Operational() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.operational
}

// Busy reports whether a command is executing.
func (e *Executor) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Position returns the current position.
func (e *Executor) Position() fleet.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// SetPosition places the unit.
func (e *Executor) SetPosition(pos fleet.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = pos
}

// Status returns the current status.
func (e *Executor) Status() fleet.UnitStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// BatteryLevel returns the battery percentage.
func (e *Executor) BatteryLevel() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.battery
}

// SetBatteryLevel sets the battery, clamped to [0, 100].
func (e *Executor) SetBatteryLevel(level float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.battery = clamp(level, 0, 100)
}

// DrainBattery reduces the battery by amount, clamped at 0.
func (e *Executor) DrainBattery(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.battery = clamp(e.battery-amount, 0, 100)
}

// SetExecutionDelay configures how long each command takes.
func (e *Executor) SetExecutionDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execDelay = d
}

// LastCommandID returns the id of the most recently completed command.
func (e *Executor) LastCommandID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCommandID
}

// ExecuteCommand starts executing cmd asynchronously. It returns false
// when the executor is not operational or already busy; the command is
// dropped in that case.
func (e *Executor) ExecuteCommand(cmd *fleet.Command) bool {
	e.mu.Lock()
	if !e.operational || e.busy {
		e.mu.Unlock()
		return false
	}
	e.busy = true
	if cmd.Type == fleet.CommandMove {
		e.status = fleet.StatusMoving
	} else {
		e.status = fleet.StatusBusy
	}
	delay := e.execDelay
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		e.apply(cmd)
	}()
	return true
}

// apply lands the command's effect after the execution delay.
func (e *Executor) apply(cmd *fleet.Command) {
	if msg, severity, ok := cmd.AlertContent(); ok {
		e.logger.Warn("alert", "unit", e.id, "message", msg, "severity", severity)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
	e.lastCommandID = cmd.ID

	switch cmd.Type {
	case fleet.CommandMove:
		if dest, ok := cmd.MoveDestination(); ok {
			e.position = dest
		}
		e.status = fleet.StatusIdle
	case fleet.CommandShutdown:
		e.operational = false
		e.status = fleet.StatusOffline
	default:
		e.status = fleet.StatusIdle
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
