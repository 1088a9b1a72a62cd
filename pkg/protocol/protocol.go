// Package protocol implements the simulator's symmetric wire format:
// a tagged envelope around command, telemetry, acknowledgment, and error
// payloads, carried over TCP as length-prefixed frames.
//
// There are two encoding layers. The concrete content (a command, a
// telemetry report, an ack, an error) is serialized to bytes first; the
// envelope wraps those bytes with a type ordinal and is serialized again
// before framing. Decode failures at either layer yield an ok=false
// result; the codec never panics on malformed peer input.
package protocol

import (
	"encoding/json"
	"time"

	"fleetsim/pkg/fleet"
)

// MessageType is the envelope's content discriminator. The ordinals are
// part of the wire format.
type MessageType int

// Envelope content types.
const (
	TypeCommand MessageType = iota
	TypeTelemetry
	TypeAcknowledgment
	TypeError
)

// Envelope is the outer tagged wrapper around any protocol content.
// Payload holds the independently serialized content bytes.
type Envelope struct {
	Type    MessageType `json:"type"`
	Payload []byte      `json:"payload"`
}

// EncodeEnvelope serializes an envelope for framing.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodeEnvelope parses a framed body back into an envelope. Returns
// ok=false on malformed input.
func DecodeEnvelope(data []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, false
	}
	return env, true
}

// wireCommand is the serialized shape of a command payload.
type wireCommand struct {
	ID        string          `json:"id"`
	TargetID  *string         `json:"target_id"`
	Type      *int            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// EncodeCommand serializes a command for use as an envelope payload.
func EncodeCommand(cmd *fleet.Command) ([]byte, error) {
	target := string(cmd.TargetID)
	typ := int(cmd.Type)
	return json.Marshal(wireCommand{
		ID:        cmd.ID,
		TargetID:  &target,
		Type:      &typ,
		Payload:   cmd.Payload,
		Timestamp: cmd.Timestamp.UnixMilli(),
	})
}

// DecodeCommand parses a command payload. target_id and type are
// required; payload defaults to an empty structure. The wire id and
// timestamp are preserved.
func DecodeCommand(data []byte) (*fleet.Command, bool) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false
	}
	if w.TargetID == nil || w.Type == nil {
		return nil, false
	}
	payload := w.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return &fleet.Command{
		ID:        w.ID,
		TargetID:  fleet.UnitID(*w.TargetID),
		Type:      fleet.CommandType(*w.Type),
		Payload:   payload,
		Timestamp: time.UnixMilli(w.Timestamp),
	}, true
}

// wirePosition mirrors fleet.Position on the wire.
type wirePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// wireTelemetryData is the serialized shape of one telemetry sample.
// Pointer fields distinguish absent from zero so decode can apply the
// documented defaults.
type wireTelemetryData struct {
	UnitID        string       `json:"unit_id"`
	Position      wirePosition `json:"position"`
	Status        int          `json:"status"`
	BatteryLevel  *float64     `json:"battery_level,omitempty"`
	CPUUsage      *float64     `json:"cpu_usage,omitempty"`
	MemoryUsage   *float64     `json:"memory_usage,omitempty"`
	LastCommandID *string      `json:"last_command_id,omitempty"`
	Timestamp     int64        `json:"timestamp"`
}

// wireTelemetryReport wraps a sample with the "telemetry" type tag.
type wireTelemetryReport struct {
	Type string             `json:"type"`
	Data *wireTelemetryData `json:"data"`
}

// telemetryTypeTag is the required outer tag on telemetry payloads.
const telemetryTypeTag = "telemetry"

// EncodeTelemetry serializes a telemetry sample for use as an envelope
// payload.
func EncodeTelemetry(data fleet.TelemetryData) ([]byte, error) {
	battery := data.BatteryLevel
	cpu := data.CPUUsage
	mem := data.MemoryUsage
	last := data.LastCommandID
	return json.Marshal(wireTelemetryReport{
		Type: telemetryTypeTag,
		Data: &wireTelemetryData{
			UnitID:        string(data.UnitID),
			Position:      wirePosition{X: data.Position.X, Y: data.Position.Y, Z: data.Position.Z},
			Status:        int(data.Status),
			BatteryLevel:  &battery,
			CPUUsage:      &cpu,
			MemoryUsage:   &mem,
			LastCommandID: &last,
			Timestamp:     data.Timestamp.UnixMilli(),
		},
	})
}

// DecodeTelemetry parses a telemetry payload. The outer type tag must be
// "telemetry" and data must be present. Missing numeric fields default
// to battery=100, cpu=0, mem=0; a missing last_command_id defaults to "".
func DecodeTelemetry(data []byte) (fleet.TelemetryData, bool) {
	var w wireTelemetryReport
	if err := json.Unmarshal(data, &w); err != nil {
		return fleet.TelemetryData{}, false
	}
	if w.Type != telemetryTypeTag || w.Data == nil {
		return fleet.TelemetryData{}, false
	}
	out := fleet.TelemetryData{
		UnitID:       fleet.UnitID(w.Data.UnitID),
		Position:     fleet.Position{X: w.Data.Position.X, Y: w.Data.Position.Y, Z: w.Data.Position.Z},
		Status:       fleet.UnitStatus(w.Data.Status),
		BatteryLevel: 100,
		Timestamp:    time.UnixMilli(w.Data.Timestamp),
	}
	if w.Data.BatteryLevel != nil {
		out.BatteryLevel = *w.Data.BatteryLevel
	}
	if w.Data.CPUUsage != nil {
		out.CPUUsage = *w.Data.CPUUsage
	}
	if w.Data.MemoryUsage != nil {
		out.MemoryUsage = *w.Data.MemoryUsage
	}
	if w.Data.LastCommandID != nil {
		out.LastCommandID = *w.Data.LastCommandID
	}
	return out, true
}

// Acknowledgment confirms receipt of a command.
type Acknowledgment struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
}

// AckStatusSuccess is the only acknowledgment status the protocol emits.
const AckStatusSuccess = "success"

// EncodeAck serializes an acknowledgment for the given command id.
func EncodeAck(commandID string) ([]byte, error) {
	return json.Marshal(Acknowledgment{CommandID: commandID, Status: AckStatusSuccess})
}

// DecodeAck parses an acknowledgment payload.
func DecodeAck(data []byte) (Acknowledgment, bool) {
	var ack Acknowledgment
	if err := json.Unmarshal(data, &ack); err != nil {
		return Acknowledgment{}, false
	}
	return ack, true
}

// ErrorMessage reports a protocol-level failure to the peer.
type ErrorMessage struct {
	Message string `json:"message"`
}

// EncodeError serializes an error payload.
func EncodeError(message string) ([]byte, error) {
	return json.Marshal(ErrorMessage{Message: message})
}

// DecodeError parses an error payload.
func DecodeError(data []byte) (ErrorMessage, bool) {
	var em ErrorMessage
	if err := json.Unmarshal(data, &em); err != nil {
		return ErrorMessage{}, false
	}
	return em, true
}

// NewCommandEnvelope wraps a command in an envelope.
func NewCommandEnvelope(cmd *fleet.Command) (Envelope, error) {
	payload, err := EncodeCommand(cmd)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeCommand, Payload: payload}, nil
}

// NewTelemetryEnvelope wraps a telemetry sample in an envelope.
func NewTelemetryEnvelope(data fleet.TelemetryData) (Envelope, error) {
	payload, err := EncodeTelemetry(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeTelemetry, Payload: payload}, nil
}

// NewAckEnvelope wraps an acknowledgment in an envelope.
func NewAckEnvelope(commandID string) (Envelope, error) {
	payload, err := EncodeAck(commandID)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeAcknowledgment, Payload: payload}, nil
}

// NewErrorEnvelope wraps an error message in an envelope.
func NewErrorEnvelope(message string) (Envelope, error) {
	payload, err := EncodeError(message)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeError, Payload: payload}, nil
}
