// Package observer fans telemetry and command lifecycle events out to
// subscribers. Subscriptions are explicit: Subscribe returns a handle
// the caller uses to unsubscribe, and the observable holds strong
// references pruned only on unsubscribe.
package observer

import (
	"log/slog"
	"sync"

	"fleetsim/pkg/fleet"
)

// Handle identifies one subscription.
type Handle uint64

// TelemetryObserver is notified of incoming telemetry reports.
type TelemetryObserver interface {
	OnTelemetryReceived(data fleet.TelemetryData)
}

// CommandObserver is notified of command lifecycle events.
type CommandObserver interface {
	OnCommandSent(cmd *fleet.Command)
	OnCommandCompleted(commandID string, success bool)
}

// TelemetryObservable manages telemetry subscribers. The zero value is
// ready to use.
type TelemetryObservable struct {
	mu        sync.Mutex
	next      Handle
	observers map[Handle]TelemetryObserver
}

// Subscribe registers obs and returns its handle.
func (o *TelemetryObservable) Subscribe(obs TelemetryObserver) Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.observers == nil {
		o.observers = make(map[Handle]TelemetryObserver)
	}
	o.next++
	o.observers[o.next] = obs
	return o.next
}

// Unsubscribe removes the subscription for h. Unknown handles are a
// no-op.
func (o *TelemetryObservable) Unsubscribe(h Handle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.observers, h)
}

// NotifyTelemetry delivers data to every current subscriber.
func (o *TelemetryObservable) NotifyTelemetry(data fleet.TelemetryData) {
	for _, obs := range o.snapshot() {
		obs.OnTelemetryReceived(data)
	}
}

func (o *TelemetryObservable) snapshot() []TelemetryObserver {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TelemetryObserver, 0, len(o.observers))
	for _, obs := range o.observers {
		out = append(out, obs)
	}
	return out
}

// CommandObservable manages command subscribers. The zero value is ready
// to use.
type CommandObservable struct {
	mu        sync.Mutex
	next      Handle
	observers map[Handle]CommandObserver
}

// Subscribe registers obs and returns its handle.
func (o *CommandObservable) Subscribe(obs CommandObserver) Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.observers == nil {
		o.observers = make(map[Handle]CommandObserver)
	}
	o.next++
	o.observers[o.next] = obs
	return o.next
}

// Unsubscribe removes the subscription for h. Unknown handles are a
// no-op.
func (o *CommandObservable) Unsubscribe(h Handle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.observers, h)
}

// NotifyCommandSent delivers a command-sent event to every subscriber.
func (o *CommandObservable) NotifyCommandSent(cmd *fleet.Command) {
	for _, obs := range o.snapshot() {
		obs.OnCommandSent(cmd)
	}
}

// NotifyCommandCompleted delivers a completion event to every subscriber.
func (o *CommandObservable) NotifyCommandCompleted(commandID string, success bool) {
	for _, obs := range o.snapshot() {
		obs.OnCommandCompleted(commandID, success)
	}
}

func (o *CommandObservable) snapshot() []CommandObserver {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]CommandObserver, 0, len(o.observers))
	for _, obs := range o.observers {
		out = append(out, obs)
	}
	return out
}

// LoggingTelemetryObserver logs received telemetry at debug level.
type LoggingTelemetryObserver struct {
	Logger *slog.Logger
}

// OnTelemetryReceived implements TelemetryObserver.
func (l *LoggingTelemetryObserver) OnTelemetryReceived(data fleet.TelemetryData) {
	l.Logger.Debug("telemetry received",
		"unit", data.UnitID,
		"status", data.Status.String(),
		"battery", data.BatteryLevel,
	)
}

// LoggingCommandObserver logs command lifecycle events.
type LoggingCommandObserver struct {
	Logger *slog.Logger
}

// OnCommandSent implements CommandObserver.
func (l *LoggingCommandObserver) OnCommandSent(cmd *fleet.Command) {
	l.Logger.Info("command sent", "id", cmd.ID, "type", cmd.Type.String(), "target", cmd.TargetID)
}

// OnCommandCompleted implements CommandObserver.
func (l *LoggingCommandObserver) OnCommandCompleted(commandID string, success bool) {
	if success {
		l.Logger.Info("command completed", "id", commandID)
		return
	}
	l.Logger.Warn("command failed", "id", commandID)
}
