// Package controller composes the registry, command queue, dispatch
// strategy, and TCP server into the central fleet controller. It learns
// which session belongs to which unit from inbound telemetry, drains the
// command queue through the active strategy, and fans lifecycle events
// out to observers.
package controller

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fleetsim/pkg/dispatch"
	"fleetsim/pkg/fleet"
	"fleetsim/pkg/observer"
	"fleetsim/pkg/protocol"
	"fleetsim/pkg/registry"
	"fleetsim/pkg/transport"
)

// defaultDispatchInterval is how often the dispatch loop polls the queue
// when it is empty.
const defaultDispatchInterval = 50 * time.Millisecond

// Command priorities assigned at enqueue time. Shutdown preempts
// everything, alerts preempt routine traffic.
const (
	priorityShutdown = 10
	priorityAlert    = 5
	priorityDefault  = 0
)

// Controller is the central command-and-control endpoint.
type Controller struct {
	logger *slog.Logger

	server   *transport.Server
	registry *registry.Registry
	queue    *dispatch.CommandQueue

	// Telemetry and Commands fan events out to subscribers.
	Telemetry observer.TelemetryObservable
	Commands  observer.CommandObservable

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu               sync.Mutex
	strategy         dispatch.Strategy
	priorities       *dispatch.PriorityStrategy
	unitSessions     map[fleet.UnitID]string
	sessionUnits     map[string]fleet.UnitID
	dispatchInterval time.Duration
}

// New creates a controller listening on addr. Call Start to begin
// serving.
func New(addr string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		logger:           logger,
		server:           transport.NewServer(addr, logger),
		registry:         registry.New(logger),
		queue:            dispatch.NewCommandQueue(),
		strategy:         dispatch.NewStrategy(dispatch.KindRoundRobin),
		priorities:       dispatch.NewPriorityStrategy(),
		unitSessions:     make(map[fleet.UnitID]string),
		sessionUnits:     make(map[string]fleet.UnitID),
		dispatchInterval: defaultDispatchInterval,
	}
	c.server.SetMessageHandler(c.handleMessage)
	c.server.SetConnectionHandler(c.handleConnection)
	return c
}

// Start binds the server and launches the dispatch loop. A second call
// while running is a no-op.
func (c *Controller) Start() error {
	if c.running.Swap(true) {
		return nil
	}
	if err := c.server.Start(); err != nil {
		c.running.Store(false)
		return fmt.Errorf("start controller: %w", err)
	}
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.dispatchLoop()
	c.logger.Info("controller started", "addr", c.server.Addr())
	return nil
}

// Stop shuts the server down and joins the dispatch loop. Idempotent.
func (c *Controller) Stop() {
	if !c.running.Swap(false) {
		return
	}
	close(c.stopCh)
	c.wg.Wait()
	c.server.Stop()
	c.logger.Info("controller stopped")
}

// Running reports whether the controller is serving.
func (c *Controller) Running() bool { return c.running.Load() }

// Addr returns the bound listen address, or "" before Start.
func (c *Controller) Addr() string { return c.server.Addr() }

// --- Unit management ---

// RegisterUnit adds or replaces a unit in the registry.
func (c *Controller) RegisterUnit(id fleet.UnitID, pos fleet.Position) {
	c.registry.Register(fleet.NewUnit(id, pos))
}

// UnregisterUnit removes a unit from the registry and forgets its
// session mapping.
func (c *Controller) UnregisterUnit(id fleet.UnitID) {
	c.registry.Unregister(id)
	c.mu.Lock()
	if sessionID, ok := c.unitSessions[id]; ok {
		delete(c.unitSessions, id)
		delete(c.sessionUnits, sessionID)
	}
	c.mu.Unlock()
}

// TotalUnits returns the number of registered units.
func (c *Controller) TotalUnits() int { return c.registry.TotalUnits() }

// ConnectedUnits returns the number of open sessions.
func (c *Controller) ConnectedUnits() int { return c.server.ClientCount() }

// Registry exposes the unit registry for read access.
func (c *Controller) Registry() *registry.Registry { return c.registry }

// UnitStatuses returns one formatted line per registered unit.
func (c *Controller) UnitStatuses() []string {
	units := c.registry.AllUnits()
	out := make([]string, 0, len(units))
	for _, u := range units {
		pos := u.Position()
		out = append(out, fmt.Sprintf("%s: %s at (%g, %g, %g)", u.ID(), u.Status(), pos.X, pos.Y, pos.Z))
	}
	return out
}

// --- Dispatch configuration ---

// SetStrategy switches the dispatch policy. The priority table survives
// strategy switches.
func (c *Controller) SetStrategy(kind dispatch.StrategyKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == dispatch.KindPriority {
		c.strategy = c.priorities
		return
	}
	c.strategy = dispatch.NewStrategy(kind)
}

// SetUnitPriority records the ranking used by the priority strategy.
func (c *Controller) SetUnitPriority(id fleet.UnitID, priority int) {
	c.priorities.SetUnitPriority(id, priority)
}

// SetDispatchInterval overrides the queue poll interval (for testing).
func (c *Controller) SetDispatchInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchInterval = d
}

// --- Command sending ---

// SendMoveCommand queues a Move command for the unit.
func (c *Controller) SendMoveCommand(id fleet.UnitID, dest fleet.Position) {
	c.queue.Enqueue(fleet.NewMoveCommand(id, dest), priorityDefault)
}

// SendReportCommand queues a Report command.
func (c *Controller) SendReportCommand(id fleet.UnitID) {
	c.queue.Enqueue(fleet.NewReportCommand(id), priorityDefault)
}

// SendAlertCommand queues an Alert command at elevated priority.
func (c *Controller) SendAlertCommand(id fleet.UnitID, message string, severity int) {
	c.queue.Enqueue(fleet.NewAlertCommand(id, message, severity), priorityAlert)
}

// SendShutdownCommand queues a Shutdown command at top priority.
func (c *Controller) SendShutdownCommand(id fleet.UnitID) {
	c.queue.Enqueue(fleet.NewShutdownCommand(id), priorityShutdown)
}

// PendingCommands returns the number of queued commands.
func (c *Controller) PendingCommands() int { return c.queue.Len() }

// --- Dispatch loop ---

// dispatchLoop drains the queue, routing each command through the
// active strategy to the sessions of online units.
func (c *Controller) dispatchLoop() {
	defer c.wg.Done()
	c.mu.Lock()
	interval := c.dispatchInterval
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			for {
				cmd, ok := c.queue.Dequeue()
				if !ok {
					break
				}
				c.dispatch(cmd)
			}
		}
	}
}

// dispatch sends one command to the units the strategy selects.
func (c *Controller) dispatch(cmd *fleet.Command) {
	online := c.registry.OnlineUnits()
	c.mu.Lock()
	strategy := c.strategy
	c.mu.Unlock()

	targets := strategy.SelectTargets(online, cmd)
	if len(targets) == 0 {
		c.logger.Debug("command has no targets", "id", cmd.ID, "type", cmd.Type.String())
		return
	}

	env, err := protocol.NewCommandEnvelope(cmd)
	if err != nil {
		c.logger.Error("encode command", "id", cmd.ID, "error", err)
		return
	}
	body, err := protocol.EncodeEnvelope(env)
	if err != nil {
		c.logger.Error("encode envelope", "id", cmd.ID, "error", err)
		return
	}

	sent := false
	for _, target := range targets {
		c.mu.Lock()
		sessionID, ok := c.unitSessions[target]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("no session for unit", "unit", target, "command", cmd.ID)
			continue
		}
		c.server.SendMessage(sessionID, body)
		sent = true
	}
	if sent {
		c.Commands.NotifyCommandSent(cmd)
	}
}

// --- Inbound traffic ---

// handleMessage decodes one inbound frame. Malformed payloads are
// answered with an Error message and dropped; the read loop is never
// aborted by peer mistakes.
func (c *Controller) handleMessage(clientID string, payload []byte) {
	env, ok := protocol.DecodeEnvelope(payload)
	if !ok {
		c.sendError(clientID, "malformed envelope")
		return
	}
	switch env.Type {
	case protocol.TypeTelemetry:
		c.handleTelemetry(clientID, env.Payload)
	case protocol.TypeAcknowledgment:
		c.handleAck(env.Payload)
	case protocol.TypeError:
		if em, ok := protocol.DecodeError(env.Payload); ok {
			c.logger.Warn("peer error", "client", clientID, "message", em.Message)
		}
	case protocol.TypeCommand:
		// Units do not command the controller.
		c.logger.Debug("ignoring command from client", "client", clientID)
	default:
		c.sendError(clientID, "unknown message type")
	}
}

// handleTelemetry updates the registry from one report, learns the
// unit's session, notifies observers, and acknowledges the command the
// report answers, if any.
func (c *Controller) handleTelemetry(clientID string, payload []byte) {
	data, ok := protocol.DecodeTelemetry(payload)
	if !ok {
		c.sendError(clientID, "malformed telemetry")
		return
	}

	c.mu.Lock()
	c.unitSessions[data.UnitID] = clientID
	c.sessionUnits[clientID] = data.UnitID
	c.mu.Unlock()

	if c.registry.Get(data.UnitID) == nil {
		c.registry.Register(fleet.NewUnit(data.UnitID, data.Position))
	}
	c.registry.UpdatePosition(data.UnitID, data.Position)
	c.registry.UpdateStatus(data.UnitID, data.Status)

	c.Telemetry.NotifyTelemetry(data)

	if ack, err := protocol.NewAckEnvelope(data.LastCommandID); err == nil && data.LastCommandID != "" {
		if body, err := protocol.EncodeEnvelope(ack); err == nil {
			c.server.SendMessage(clientID, body)
		}
	}
}

// handleAck records a unit's acknowledgment of a dispatched command.
func (c *Controller) handleAck(payload []byte) {
	ack, ok := protocol.DecodeAck(payload)
	if !ok {
		return
	}
	c.Commands.NotifyCommandCompleted(ack.CommandID, ack.Status == protocol.AckStatusSuccess)
}

// handleConnection maintains the unit/session mapping across
// disconnects.
func (c *Controller) handleConnection(clientID string, connected bool) {
	if connected {
		return
	}
	c.mu.Lock()
	if unitID, ok := c.sessionUnits[clientID]; ok {
		delete(c.sessionUnits, clientID)
		delete(c.unitSessions, unitID)
	}
	c.mu.Unlock()
}

// sendError answers a session with an Error envelope, best-effort.
func (c *Controller) sendError(clientID, message string) {
	env, err := protocol.NewErrorEnvelope(message)
	if err != nil {
		return
	}
	body, err := protocol.EncodeEnvelope(env)
	if err != nil {
		return
	}
	c.server.SendMessage(clientID, body)
}
