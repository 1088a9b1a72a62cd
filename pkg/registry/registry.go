// Package registry tracks the fleet's known units under a single lock.
// Liveness is computed on demand from each unit's last update, so the
// online/offline partition always sums to the total within one
// observation.
package registry

import (
	"log/slog"
	"sync"

	"fleetsim/pkg/fleet"
)

// Registry is a concurrent map from unit id to unit state. The zero
// value is not usable; construct with New.
type Registry struct {
	logger *slog.Logger

	mu    sync.Mutex
	units map[fleet.UnitID]*fleet.Unit
}

// New creates an empty registry. Registration and removal are logged at
// info level through the given logger.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		units:  make(map[fleet.UnitID]*fleet.Unit),
	}
}

// Register upserts a unit, overwriting any existing entry under the
// same id.
func (r *Registry) Register(unit *fleet.Unit) {
	r.mu.Lock()
	r.units[unit.ID()] = unit
	r.mu.Unlock()
	r.logger.Info("unit registered", "unit", unit.ID())
}

// Unregister removes a unit. It is a no-op if the id is absent.
func (r *Registry) Unregister(id fleet.UnitID) {
	r.mu.Lock()
	_, present := r.units[id]
	delete(r.units, id)
	r.mu.Unlock()
	if present {
		r.logger.Info("unit unregistered", "unit", id)
	}
}

// Get returns the unit for id, or nil if unknown.
func (r *Registry) Get(id fleet.UnitID) *fleet.Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.units[id]
}

// AllUnitIDs returns the ids of every registered unit.
func (r *Registry) AllUnitIDs() []fleet.UnitID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]fleet.UnitID, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	return ids
}

// AllUnits returns every registered unit.
func (r *Registry) AllUnits() []*fleet.Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	units := make([]*fleet.Unit, 0, len(r.units))
	for _, u := range r.units {
		units = append(units, u)
	}
	return units
}

// OnlineUnits returns the ids of units inside the staleness window.
func (r *Registry) OnlineUnits() []fleet.UnitID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var online []fleet.UnitID
	for id, u := range r.units {
		if u.Online() {
			online = append(online, id)
		}
	}
	return online
}

// OfflineUnits returns the ids of units outside the staleness window.
func (r *Registry) OfflineUnits() []fleet.UnitID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var offline []fleet.UnitID
	for id, u := range r.units {
		if !u.Online() {
			offline = append(offline, id)
		}
	}
	return offline
}

// TotalUnits returns the number of registered units.
func (r *Registry) TotalUnits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}

// OnlineCount returns how many units are currently online.
func (r *Registry) OnlineCount() int {
	return len(r.OnlineUnits())
}

// OfflineCount returns how many units are currently offline.
func (r *Registry) OfflineCount() int {
	return len(r.OfflineUnits())
}

// UpdateStatus sets the status of the unit with id. The lookup and the
// mutation are two steps; if the unit is unregistered in between, the
// update is silently dropped.
func (r *Registry) UpdateStatus(id fleet.UnitID, status fleet.UnitStatus) {
	if u := r.Get(id); u != nil {
		u.SetStatus(status)
	}
}

// UpdatePosition sets the position of the unit with id. Same race window
// as UpdateStatus: a concurrent unregistration drops the update.
func (r *Registry) UpdatePosition(id fleet.UnitID, pos fleet.Position) {
	if u := r.Get(id); u != nil {
		u.SetPosition(pos)
	}
}
