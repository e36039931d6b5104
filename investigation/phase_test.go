// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package investigation

import (
	"math/rand"
	"testing"
)

func TestPhaseOrderedTransitions(t *testing.T) {
	t.Parallel()
	tracker := NewPhaseTracker()

	for _, step := range []struct {
		status Status
		ts     float64
	}{
		{StatusPending, 1},
		{StatusRunning, 2},
		{StatusCompleted, 3},
	} {
		if !tracker.Apply(PhaseEvent{Phase: PhaseTigerDetection, Status: step.status, Timestamp: step.ts}) {
			t.Fatalf("event %+v unexpectedly discarded", step)
		}
	}

	phase, _ := tracker.Phase(PhaseTigerDetection)
	if phase.Status != StatusCompleted {
		t.Errorf("status: got %q, want %q", phase.Status, StatusCompleted)
	}
	if phase.LastEventTimestamp != 3 {
		t.Errorf("lastEventTimestamp: got %v, want 3", phase.LastEventTimestamp)
	}
}

func TestPhaseStaleEventDiscarded(t *testing.T) {
	t.Parallel()
	tracker := NewPhaseTracker()

	tracker.Apply(PhaseEvent{Phase: PhaseTigerDetection, Status: StatusCompleted, Timestamp: 3})

	// A running event from before completion arrives late.
	if tracker.Apply(PhaseEvent{Phase: PhaseTigerDetection, Status: StatusRunning, Timestamp: 2.5}) {
		t.Error("stale running event was applied over a newer completed state")
	}

	phase, _ := tracker.Phase(PhaseTigerDetection)
	if phase.Status != StatusCompleted || phase.LastEventTimestamp != 3 {
		t.Errorf("phase regressed: %+v", phase)
	}
}

func TestPhaseErrorReachableFromAnyState(t *testing.T) {
	t.Parallel()
	tracker := NewPhaseTracker()

	tracker.Apply(PhaseEvent{Phase: PhaseStripeAnalysis, Status: StatusCompleted, Timestamp: 5})
	if !tracker.Apply(PhaseEvent{Phase: PhaseStripeAnalysis, Status: StatusError, Timestamp: 6}) {
		t.Fatal("newer error event was discarded")
	}

	phase, _ := tracker.Phase(PhaseStripeAnalysis)
	if phase.Status != StatusError {
		t.Errorf("status: got %q, want %q", phase.Status, StatusError)
	}
}

// TestPhaseFinalStatusUnderReordering checks the idempotence property:
// for any delivery order, the final status of a phase is the status of
// the greatest-timestamp event ever delivered for it.
func TestPhaseFinalStatusUnderReordering(t *testing.T) {
	t.Parallel()
	events := []PhaseEvent{
		{Phase: PhaseReverseImageSearch, Status: StatusPending, Timestamp: 1},
		{Phase: PhaseReverseImageSearch, Status: StatusRunning, Timestamp: 2},
		{Phase: PhaseReverseImageSearch, Status: StatusRunning, Timestamp: 4},
		{Phase: PhaseReverseImageSearch, Status: StatusError, Timestamp: 3},
		{Phase: PhaseReverseImageSearch, Status: StatusCompleted, Timestamp: 7},
		{Phase: PhaseReverseImageSearch, Status: StatusRunning, Timestamp: 5},
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		tracker := NewPhaseTracker()
		shuffled := make([]PhaseEvent, len(events))
		copy(shuffled, events)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		// Deliver every event twice to exercise duplicate tolerance.
		for _, event := range shuffled {
			tracker.Apply(event)
			tracker.Apply(event)
		}

		phase, _ := tracker.Phase(PhaseReverseImageSearch)
		if phase.Status != StatusCompleted || phase.LastEventTimestamp != 7 {
			t.Fatalf("trial %d: got %q@%v, want completed@7 (order %v)",
				trial, phase.Status, phase.LastEventTimestamp, shuffled)
		}
	}
}

func TestPhaseCurrentPrefersFirstRunning(t *testing.T) {
	t.Parallel()
	tracker := NewPhaseTracker()

	tracker.Apply(PhaseEvent{Phase: PhaseUploadAndParse, Status: StatusCompleted, Timestamp: 1})
	tracker.Apply(PhaseEvent{Phase: PhaseReverseImageSearch, Status: StatusRunning, Timestamp: 2})
	tracker.Apply(PhaseEvent{Phase: PhaseTigerDetection, Status: StatusRunning, Timestamp: 3})

	current, ok := tracker.Current()
	if !ok || current.Key != PhaseReverseImageSearch {
		t.Errorf("current: got %v/%v, want reverse_image_search", current.Key, ok)
	}
}

func TestPhaseCurrentFallsBackToHighestTerminal(t *testing.T) {
	t.Parallel()
	tracker := NewPhaseTracker()

	tracker.Apply(PhaseEvent{Phase: PhaseUploadAndParse, Status: StatusCompleted, Timestamp: 1})
	tracker.Apply(PhaseEvent{Phase: PhaseReverseImageSearch, Status: StatusError, Timestamp: 2})

	current, ok := tracker.Current()
	if !ok || current.Key != PhaseReverseImageSearch {
		t.Errorf("current: got %v/%v, want reverse_image_search", current.Key, ok)
	}
}

func TestPhaseCurrentNoneStarted(t *testing.T) {
	t.Parallel()
	tracker := NewPhaseTracker()
	if _, ok := tracker.Current(); ok {
		t.Error("Current reported a phase before any event arrived")
	}
}

func TestPhaseCompletedCountRecomputed(t *testing.T) {
	t.Parallel()
	tracker := NewPhaseTracker()

	tracker.Apply(PhaseEvent{Phase: PhaseUploadAndParse, Status: StatusCompleted, Timestamp: 1})
	tracker.Apply(PhaseEvent{Phase: PhaseReverseImageSearch, Status: StatusCompleted, Timestamp: 2})
	tracker.Apply(PhaseEvent{Phase: PhaseTigerDetection, Status: StatusError, Timestamp: 3})

	if got := tracker.CompletedCount(); got != 2 {
		t.Errorf("CompletedCount: got %d, want 2 (error is not completed)", got)
	}

	// Error phase later succeeds with a newer event.
	tracker.Apply(PhaseEvent{Phase: PhaseTigerDetection, Status: StatusCompleted, Timestamp: 4})
	if got := tracker.CompletedCount(); got != 3 {
		t.Errorf("CompletedCount after recovery: got %d, want 3", got)
	}
}
