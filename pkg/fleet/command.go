package fleet

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// CommandType classifies a command. The ordinals are part of the wire
// format.
type CommandType int

// Command type values.
const (
	CommandMove CommandType = iota
	CommandReport
	CommandAlert
	CommandShutdown
)

// String returns a human-readable command type name.
func (t CommandType) String() string {
	switch t {
	case CommandMove:
		return "move"
	case CommandReport:
		return "report"
	case CommandAlert:
		return "alert"
	case CommandShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// commandCounter feeds monotonically unique command ids.
var commandCounter atomic.Uint64 //nolint:gochecknoglobals // id generation needs process-wide monotonicity

// nextCommandID returns the next "cmd_<n>" identifier.
func nextCommandID() string {
	return fmt.Sprintf("cmd_%d", commandCounter.Add(1)-1)
}

// Command is an instruction for a unit. It is immutable after
// construction; ownership transfers between the queue and in-flight
// sends, it is never shared.
type Command struct {
	ID        string
	TargetID  UnitID
	Type      CommandType
	Payload   json.RawMessage
	Timestamp time.Time
}

// newCommand builds a command with a generated id and current timestamp.
func newCommand(target UnitID, typ CommandType, payload json.RawMessage) *Command {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	return &Command{
		ID:        nextCommandID(),
		TargetID:  target,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// movePayload is the structured content of a Move command.
type movePayload struct {
	Destination Position `json:"destination"`
}

// alertPayload is the structured content of an Alert command.
type alertPayload struct {
	Message  string `json:"message"`
	Severity int    `json:"severity"`
}

// NewMoveCommand creates a Move command ordering the target to dest.
func NewMoveCommand(target UnitID, dest Position) *Command {
	raw, _ := json.Marshal(movePayload{Destination: dest})
	return newCommand(target, CommandMove, raw)
}

// NewReportCommand creates a Report command requesting telemetry.
func NewReportCommand(target UnitID) *Command {
	return newCommand(target, CommandReport, nil)
}

// NewAlertCommand creates an Alert command carrying a message and severity.
func NewAlertCommand(target UnitID, message string, severity int) *Command {
	raw, _ := json.Marshal(alertPayload{Message: message, Severity: severity})
	return newCommand(target, CommandAlert, raw)
}

// NewShutdownCommand creates a Shutdown command.
func NewShutdownCommand(target UnitID) *Command {
	return newCommand(target, CommandShutdown, nil)
}

// MoveDestination extracts the destination of a Move command. Returns
// false if the command is not a Move or its payload is malformed.
func (c *Command) MoveDestination() (Position, bool) {
	if c.Type != CommandMove {
		return Position{}, false
	}
	var p movePayload
	if err := json.Unmarshal(c.Payload, &p); err != nil {
		return Position{}, false
	}
	return p.Destination, true
}

// AlertContent extracts the message and severity of an Alert command.
// Returns false if the command is not an Alert or its payload is
// malformed.
func (c *Command) AlertContent() (string, int, bool) {
	if c.Type != CommandAlert {
		return "", 0, false
	}
	var p alertPayload
	if err := json.Unmarshal(c.Payload, &p); err != nil {
		return "", 0, false
	}
	return p.Message, p.Severity, true
}
