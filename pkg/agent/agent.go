package agent

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fleetsim/pkg/fleet"
	"fleetsim/pkg/protocol"
	"fleetsim/pkg/transport"
)

// batteryDrainPerReport is how much charge one telemetry cycle
// consumes in the simulation.
const batteryDrainPerReport = 0.05

// Agent is one simulated unit process: a persistent client connection,
// an executor, and a telemetry loop. It does not reconnect on its own.
type Agent struct {
	id       fleet.UnitID
	logger   *slog.Logger
	client   *transport.Client
	executor *Executor
	interval time.Duration

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates an agent for unit id that will connect to the controller
// at addr and report telemetry every interval.
func New(id fleet.UnitID, addr string, interval time.Duration, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("unit", id)
	a := &Agent{
		id:       id,
		logger:   logger,
		client:   transport.NewClient(addr, logger),
		executor: NewExecutor(id, logger),
		interval: interval,
	}
	a.client.SetMessageHandler(a.handleMessage)
	a.client.SetConnectionHandler(a.handleConnection)
	return a
}

// Executor exposes the simulated unit for scenario setup.
func (a *Agent) Executor() *Executor { return a.executor }

// ID returns the agent's unit id.
func (a *Agent) ID() fleet.UnitID { return a.id }

// Start connects to the controller and begins operating: the executor
// accepts commands and the telemetry loop reports every interval. A
// second call while running is a no-op.
func (a *Agent) Start() error {
	if a.running.Swap(true) {
		return nil
	}
	if err := a.client.Connect(); err != nil {
		a.running.Store(false)
		return fmt.Errorf("agent %s: %w", a.id, err)
	}
	a.executor.StartOperation()
	a.stopCh = make(chan struct{})
	a.wg.Add(1)
	go a.telemetryLoop()
	return nil
}

// Stop halts the telemetry loop, stops the executor, and disconnects.
// Idempotent.
func (a *Agent) Stop() {
	if !a.running.Swap(false) {
		return
	}
	close(a.stopCh)
	a.wg.Wait()
	a.executor.StopOperation()
	a.client.Disconnect()
}

// Running reports whether the agent is operating.
func (a *Agent) Running() bool { return a.running.Load() }

// Connected reports whether the connection to the controller is open.
func (a *Agent) Connected() bool { return a.client.Connected() }

// telemetryLoop sends one report immediately, then on every interval
// tick until stopped.
func (a *Agent) telemetryLoop() {
	defer a.wg.Done()
	a.sendTelemetry()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.sendTelemetry()
		}
	}
}

// sendTelemetry reports the executor's current state. Send failures are
// left to the connection-state callback; the loop keeps ticking.
func (a *Agent) sendTelemetry() {
	a.executor.DrainBattery(batteryDrainPerReport)

	data := fleet.TelemetryData{
		UnitID:        a.id,
		Position:      a.executor.Position(),
		Status:        a.executor.Status(),
		BatteryLevel:  a.executor.BatteryLevel(),
		LastCommandID: a.executor.LastCommandID(),
		Timestamp:     time.Now(),
	}
	env, err := protocol.NewTelemetryEnvelope(data)
	if err != nil {
		a.logger.Error("encode telemetry", "error", err)
		return
	}
	body, err := protocol.EncodeEnvelope(env)
	if err != nil {
		a.logger.Error("encode envelope", "error", err)
		return
	}
	if err := a.client.Send(body); err != nil {
		a.logger.Debug("telemetry send failed", "error", err)
	}
}

// handleMessage decodes one inbound frame from the controller.
func (a *Agent) handleMessage(payload []byte) {
	env, ok := protocol.DecodeEnvelope(payload)
	if !ok {
		a.logger.Warn("malformed envelope from controller")
		return
	}
	switch env.Type {
	case protocol.TypeCommand:
		a.handleCommand(env.Payload)
	case protocol.TypeAcknowledgment:
		if ack, ok := protocol.DecodeAck(env.Payload); ok {
			a.logger.Debug("telemetry acknowledged", "command", ack.CommandID)
		}
	case protocol.TypeError:
		if em, ok := protocol.DecodeError(env.Payload); ok {
			a.logger.Warn("controller error", "message", em.Message)
		}
	default:
		a.logger.Debug("ignoring message", "type", int(env.Type))
	}
}

// handleCommand executes one command and acknowledges it.
func (a *Agent) handleCommand(payload []byte) {
	cmd, ok := protocol.DecodeCommand(payload)
	if !ok {
		a.logger.Warn("malformed command from controller")
		return
	}
	a.logger.Info("command received", "id", cmd.ID, "type", cmd.Type.String())

	accepted := a.executor.ExecuteCommand(cmd)
	if !accepted {
		a.logger.Warn("command dropped", "id", cmd.ID, "busy", a.executor.Busy())
		return
	}

	env, err := protocol.NewAckEnvelope(cmd.ID)
	if err != nil {
		return
	}
	body, err := protocol.EncodeEnvelope(env)
	if err != nil {
		return
	}
	if err := a.client.Send(body); err != nil {
		a.logger.Debug("ack send failed", "command", cmd.ID, "error", err)
	}

	// A report request gets an answer now, not at the next tick.
	if cmd.Type == fleet.CommandReport {
		a.sendTelemetry()
	}
}

// handleConnection reacts to connection-state transitions. Loss of the
// connection stops telemetry until the caller restarts the agent; no
// reconnect policy lives here.
func (a *Agent) handleConnection(connected bool) {
	if connected {
		a.logger.Info("link up")
		return
	}
	a.logger.Warn("link down")
}
