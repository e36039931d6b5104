// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package investigation

import "math"

// Phase is one stage of the pipeline as tracked by the engine.
type Phase struct {
	Key    PhaseKey
	Status Status

	// LastEventTimestamp is the timestamp of the newest event ever
	// applied to this phase, in Unix seconds. Events older than this
	// are discarded.
	LastEventTimestamp float64

	// Data is the phase-specific payload from the newest applied
	// event. May be nil.
	Data map[string]any
}

// PhaseTracker maintains the six-phase pipeline state machine. The
// transition rule is purely timestamp-driven: an incoming event
// applies if and only if its timestamp is at least the phase's
// LastEventTimestamp, and an applied event overwrites status
// unconditionally. Error is therefore reachable from any state, and a
// completed phase cannot be regressed by a stale running event. The
// final status of a phase is always the status of the
// greatest-timestamp event ever delivered for it, regardless of
// delivery order.
//
// PhaseTracker is not safe for concurrent use; the Engine serializes
// access.
type PhaseTracker struct {
	phases [len(PhaseOrder)]Phase
}

// NewPhaseTracker returns a tracker with every phase pending. The
// initial LastEventTimestamp is -Inf so the first event for a phase
// always applies, whatever epoch the backend timestamps from.
func NewPhaseTracker() *PhaseTracker {
	tracker := &PhaseTracker{}
	for i, key := range PhaseOrder {
		tracker.phases[i] = Phase{
			Key:                key,
			Status:             StatusPending,
			LastEventTimestamp: math.Inf(-1),
		}
	}
	return tracker
}

// Apply applies a phase event, returning true if it was applied and
// false if it was discarded as stale. Events for unknown phases never
// reach this method (Normalize rejects them).
func (tracker *PhaseTracker) Apply(event PhaseEvent) bool {
	index := tracker.indexOf(event.Phase)
	if index < 0 {
		return false
	}
	phase := &tracker.phases[index]
	if event.Timestamp < phase.LastEventTimestamp {
		return false
	}
	phase.Status = event.Status
	phase.LastEventTimestamp = event.Timestamp
	if event.Data != nil {
		phase.Data = event.Data
	}
	return true
}

// Seed overwrites a phase's state from an initial snapshot. Seeding
// uses the same stale-discard rule as Apply so that a snapshot
// arriving after streaming has begun cannot regress newer state.
func (tracker *PhaseTracker) Seed(key PhaseKey, status Status, timestamp float64) bool {
	if !knownStatus(status) {
		return false
	}
	return tracker.Apply(PhaseEvent{Phase: key, Status: status, Timestamp: timestamp})
}

// Phase returns the tracked state for key.
func (tracker *PhaseTracker) Phase(key PhaseKey) (Phase, bool) {
	index := tracker.indexOf(key)
	if index < 0 {
		return Phase{}, false
	}
	return tracker.phases[index], true
}

// Phases returns the phases in pipeline order. The returned slice is
// a copy; mutating it does not affect the tracker.
func (tracker *PhaseTracker) Phases() []Phase {
	phases := make([]Phase, len(tracker.phases))
	copy(phases, tracker.phases[:])
	return phases
}

// Current returns the pipeline's current phase: the first phase in
// pipeline order whose status is running, or failing that the
// highest-index phase that has reached a terminal state. Returns
// false when nothing has started.
func (tracker *PhaseTracker) Current() (Phase, bool) {
	for _, phase := range tracker.phases {
		if phase.Status == StatusRunning {
			return phase, true
		}
	}
	for i := len(tracker.phases) - 1; i >= 0; i-- {
		if tracker.phases[i].Status.Terminal() {
			return tracker.phases[i], true
		}
	}
	return Phase{}, false
}

// CompletedCount returns the number of phases with status completed.
// Recomputed on every call — the tracker keeps no separate counter
// that could drift from the canonical per-phase state.
func (tracker *PhaseTracker) CompletedCount() int {
	count := 0
	for _, phase := range tracker.phases {
		if phase.Status == StatusCompleted {
			count++
		}
	}
	return count
}

// Count returns the total number of pipeline phases.
func (tracker *PhaseTracker) Count() int {
	return len(tracker.phases)
}

func (tracker *PhaseTracker) indexOf(key PhaseKey) int {
	for i, phase := range tracker.phases {
		if phase.Key == key {
			return i
		}
	}
	return -1
}
