package fleet

import "time"

// TelemetryData is one sample of a unit's self-reported state. The
// resource fields are informational percentages in [0,100] by convention
// of the producer; the core does not clamp them.
type TelemetryData struct {
	UnitID        UnitID
	Position      Position
	Status        UnitStatus
	BatteryLevel  float64
	CPUUsage      float64
	MemoryUsage   float64
	LastCommandID string
	Timestamp     time.Time
}

// NewTelemetryData builds a sample with full battery and a current
// timestamp. Callers overwrite fields as needed before sending.
func NewTelemetryData(id UnitID, pos Position, status UnitStatus) TelemetryData {
	return TelemetryData{
		UnitID:       id,
		Position:     pos,
		Status:       status,
		BatteryLevel: 100,
		Timestamp:    time.Now(),
	}
}
