// Package fleet defines the domain model shared by the controller and
// agent sides of the simulator: unit identity and state, typed commands,
// and telemetry reports. It has no dependencies on the network or
// dispatch layers.
package fleet

import (
	"sync"
	"time"
)

// UnitID identifies a unit. Comparison and map keying are by value.
type UnitID string

// StalenessWindow is how long a unit may go without a state update
// before it is considered offline.
const StalenessWindow = 30 * time.Second

// UnitStatus is the operational state reported by or assigned to a unit.
type UnitStatus int

// Unit status values. The ordinals are part of the wire format.
const (
	StatusIdle UnitStatus = iota
	StatusMoving
	StatusBusy
	StatusError
	StatusOffline
)

// String returns a human-readable status name.
func (s UnitStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusMoving:
		return "moving"
	case StatusBusy:
		return "busy"
	case StatusError:
		return "error"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Position is a point in the simulation's coordinate space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Unit tracks the last known state of a single fleet unit. All state is
// mutated through setters that advance the last-update timestamp; liveness
// is derived from that timestamp, never stored.
type Unit struct {
	id UnitID

	mu         sync.Mutex
	position   Position
	status     UnitStatus
	lastUpdate time.Time

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// NewUnit creates a unit at the given position with StatusIdle and a
// fresh last-update timestamp.
func NewUnit(id UnitID, pos Position) *Unit {
	return &Unit{
		id:         id,
		position:   pos,
		status:     StatusIdle,
		lastUpdate: time.Now(),
		nowFunc:    time.Now,
	}
}

// ID returns the unit's identifier.
func (u *Unit) ID() UnitID { return u.id }

// Position returns the last known position.
func (u *Unit) Position() Position {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.position
}

// Status returns the last known status.
func (u *Unit) Status() UnitStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// LastUpdate returns when the unit's state last changed.
func (u *Unit) LastUpdate() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastUpdate
}

// SetPosition records a new position and refreshes the update timestamp.
func (u *Unit) SetPosition(pos Position) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.position = pos
	u.lastUpdate = u.nowFunc()
}

// SetStatus records a new status and refreshes the update timestamp.
func (u *Unit) SetStatus(status UnitStatus) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = status
	u.lastUpdate = u.nowFunc()
}

// Online reports whether the unit has updated within the staleness window.
func (u *Unit) Online() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.nowFunc().Sub(u.lastUpdate) < StalenessWindow
}

// SetNowFunc overrides the unit's clock (for testing).
func (u *Unit) SetNowFunc(now func() time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.nowFunc = now
}
