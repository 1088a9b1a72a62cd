// Package dispatch holds the command-dispatch primitives: pluggable
// target-selection strategies and a thread-safe priority queue of
// pending commands. It knows nothing about the registry or the network;
// callers compose it with those layers.
package dispatch

import (
	"sort"
	"sync"
	"sync/atomic"

	"fleetsim/pkg/fleet"
)

// Strategy selects which units receive a command. Implementations must
// be safe for concurrent use and must return an empty slice for an empty
// candidate list, for every command type.
type Strategy interface {
	SelectTargets(available []fleet.UnitID, cmd *fleet.Command) []fleet.UnitID
}

// StrategyKind names a selection policy for the factory.
type StrategyKind string

// Selection policies.
const (
	KindRoundRobin StrategyKind = "round_robin"
	KindPriority   StrategyKind = "priority"
	KindBroadcast  StrategyKind = "broadcast"
)

// NewStrategy returns a fresh strategy instance for kind. An
// unrecognized kind falls back to round-robin rather than erroring.
func NewStrategy(kind StrategyKind) Strategy {
	switch kind {
	case KindPriority:
		return NewPriorityStrategy()
	case KindBroadcast:
		return &BroadcastStrategy{}
	case KindRoundRobin:
		return &RoundRobinStrategy{}
	default:
		return &RoundRobinStrategy{}
	}
}

// RoundRobinStrategy rotates single-target commands through the
// candidate list with a shared atomic cursor. Report commands go to
// every candidate and leave the cursor untouched. The cursor has no
// snapshot consistency with the list: if the list size changes between
// calls the rotation may skip or repeat entries.
type RoundRobinStrategy struct {
	cursor atomic.Uint64
}

// SelectTargets implements Strategy.
func (s *RoundRobinStrategy) SelectTargets(available []fleet.UnitID, cmd *fleet.Command) []fleet.UnitID {
	if len(available) == 0 {
		return nil
	}
	if cmd.Type == fleet.CommandReport {
		out := make([]fleet.UnitID, len(available))
		copy(out, available)
		return out
	}
	index := (s.cursor.Add(1) - 1) % uint64(len(available))
	return []fleet.UnitID{available[index]}
}

// PriorityStrategy ranks candidates by a side table of per-unit
// priorities (default 0 when unset). Move, Alert, and Shutdown pick the
// single top-priority unit; Report picks the top min(3, N). Ties keep
// input order.
type PriorityStrategy struct {
	mu         sync.RWMutex
	priorities map[fleet.UnitID]int
}

// reportTargetCount is how many units a Report command fans out to under
// the priority policy.
const reportTargetCount = 3

// NewPriorityStrategy creates a priority strategy with an empty table.
func NewPriorityStrategy() *PriorityStrategy {
	return &PriorityStrategy{priorities: make(map[fleet.UnitID]int)}
}

// SetUnitPriority records the priority used to rank unit.
func (s *PriorityStrategy) SetUnitPriority(unit fleet.UnitID, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priorities[unit] = priority
}

// UnitPriority returns unit's priority, defaulting to 0 when unset.
func (s *PriorityStrategy) UnitPriority(unit fleet.UnitID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.priorities[unit]
}

// SelectTargets implements Strategy.
func (s *PriorityStrategy) SelectTargets(available []fleet.UnitID, cmd *fleet.Command) []fleet.UnitID {
	if len(available) == 0 {
		return nil
	}

	ranked := make([]fleet.UnitID, len(available))
	copy(ranked, available)
	s.mu.RLock()
	sort.SliceStable(ranked, func(i, j int) bool {
		return s.priorities[ranked[i]] > s.priorities[ranked[j]]
	})
	s.mu.RUnlock()

	if cmd.Type == fleet.CommandReport {
		return ranked[:min(reportTargetCount, len(ranked))]
	}
	return ranked[:1]
}

// BroadcastStrategy returns the full candidate list unchanged for every
// command type.
type BroadcastStrategy struct{}

// SelectTargets implements Strategy.
func (s *BroadcastStrategy) SelectTargets(available []fleet.UnitID, _ *fleet.Command) []fleet.UnitID {
	if len(available) == 0 {
		return nil
	}
	out := make([]fleet.UnitID, len(available))
	copy(out, available)
	return out
}
