package eventlog

import (
	"context"
	"fmt"
	"log/slog"

	"fleetsim/pkg/fleet"
)

// Recorder adapts a Store to the observer interfaces so the controller
// can wire the event log by subscription. Write failures are logged and
// otherwise swallowed; the audit trail must never disturb dispatch.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder wraps store. The logger receives write failures.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// OnTelemetryReceived implements observer.TelemetryObserver.
func (r *Recorder) OnTelemetryReceived(data fleet.TelemetryData) {
	detail := fmt.Sprintf("status=%s battery=%.1f pos=(%.1f,%.1f,%.1f)",
		data.Status, data.BatteryLevel, data.Position.X, data.Position.Y, data.Position.Z)
	if err := r.store.Record(context.Background(), KindTelemetry, data.UnitID, data.LastCommandID, detail); err != nil {
		r.logger.Warn("event log write failed", "kind", KindTelemetry, "error", err)
	}
}

// OnCommandSent implements observer.CommandObserver.
func (r *Recorder) OnCommandSent(cmd *fleet.Command) {
	if err := r.store.Record(context.Background(), KindCommandSent, cmd.TargetID, cmd.ID, cmd.Type.String()); err != nil {
		r.logger.Warn("event log write failed", "kind", KindCommandSent, "error", err)
	}
}

// OnCommandCompleted implements observer.CommandObserver.
func (r *Recorder) OnCommandCompleted(commandID string, success bool) {
	kind := KindCommandCompleted
	if !success {
		kind = KindCommandFailed
	}
	if err := r.store.Record(context.Background(), kind, "", commandID, ""); err != nil {
		r.logger.Warn("event log write failed", "kind", kind, "error", err)
	}
}
