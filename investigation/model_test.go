// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package investigation

import (
	"testing"
	"time"

	"github.com/stripesight/stripesight/lib/clock"
)

func newTestModelTracker() (*ModelTracker, *clock.FakeClock) {
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewModelTracker(clk, DefaultAgreementThreshold), clk
}

func floatPtr(v float64) *float64 { return &v }

func TestModelCreatedLazily(t *testing.T) {
	t.Parallel()
	tracker, _ := newTestModelTracker()

	if tracker.Count() != 0 {
		t.Fatalf("Count before events: got %d, want 0", tracker.Count())
	}

	tracker.Apply(ModelEvent{Model: "wildlife_tools", Status: StatusRunning, Progress: 5})

	model, ok := tracker.Model("wildlife_tools")
	if !ok {
		t.Fatal("model not created on first event")
	}
	if model.Weight != 1 {
		t.Errorf("default weight: got %v, want 1", model.Weight)
	}
}

func TestModelProgressClamped(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input float64
		want  float64
	}{
		{150, 100},
		{-5, 0},
		{0, 0},
		{100, 100},
		{42.5, 42.5},
	}

	for _, tc := range cases {
		tracker, clk := newTestModelTracker()
		tracker.Apply(ModelEvent{Model: "m", Status: StatusRunning, Progress: tc.input})
		clk.Advance(time.Second)

		model, _ := tracker.Model("m")
		if model.Progress != tc.want {
			t.Errorf("progress %v: got %v, want %v", tc.input, model.Progress, tc.want)
		}
	}
}

func TestModelStartedAtSetOnceOnRunning(t *testing.T) {
	t.Parallel()
	tracker, clk := newTestModelTracker()

	tracker.Apply(ModelEvent{Model: "m", Status: StatusRunning, Progress: 0})
	model, _ := tracker.Model("m")
	if model.StartedAt == nil {
		t.Fatal("StartedAt not set when model became running")
	}
	started := *model.StartedAt

	clk.Advance(time.Minute)
	tracker.Apply(ModelEvent{Model: "m", Status: StatusRunning, Progress: 50})
	model, _ = tracker.Model("m")
	if !model.StartedAt.Equal(started) {
		t.Errorf("StartedAt overwritten: got %v, want %v", model.StartedAt, started)
	}
}

func TestModelCompletedAtAfterStartedAt(t *testing.T) {
	t.Parallel()
	tracker, clk := newTestModelTracker()

	tracker.Apply(ModelEvent{Model: "m", Status: StatusRunning, Progress: 0})
	clk.Advance(30 * time.Second)
	tracker.Apply(ModelEvent{Model: "m", Status: StatusCompleted, Progress: 100})

	model, _ := tracker.Model("m")
	if model.CompletedAt == nil {
		t.Fatal("CompletedAt not set on completion")
	}
	processing, ok := model.ProcessingTime()
	if !ok {
		t.Fatal("ProcessingTime undefined with both stamps set")
	}
	if processing != 30*time.Second {
		t.Errorf("ProcessingTime: got %v, want 30s", processing)
	}

	// A later duplicate completion must not move CompletedAt.
	completed := *model.CompletedAt
	clk.Advance(time.Minute)
	tracker.Apply(ModelEvent{Model: "m", Status: StatusCompleted, Progress: 100})
	model, _ = tracker.Model("m")
	if !model.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt overwritten: got %v, want %v", model.CompletedAt, completed)
	}
}

func TestModelStaleTimestampDiscarded(t *testing.T) {
	t.Parallel()
	tracker, _ := newTestModelTracker()

	tracker.Apply(ModelEvent{Model: "m", Status: StatusCompleted, Progress: 100, Timestamp: 10})

	transitions := tracker.Apply(ModelEvent{Model: "m", Status: StatusRunning, Progress: 50, Timestamp: 9})
	if transitions.Applied {
		t.Error("stale model event was applied")
	}

	model, _ := tracker.Model("m")
	if model.Status != StatusCompleted || model.Progress != 100 {
		t.Errorf("model regressed: %+v", model)
	}
}

func TestModelErrorRecordsMessage(t *testing.T) {
	t.Parallel()
	tracker, _ := newTestModelTracker()

	tracker.Apply(ModelEvent{Model: "m", Status: StatusRunning, Progress: 10})
	transitions := tracker.Apply(ModelEvent{
		Model:        "m",
		Status:       StatusError,
		Progress:     10,
		ErrorMessage: "embedding service unavailable",
	})

	if !transitions.BecameTerminal {
		t.Error("error transition not reported as terminal")
	}
	model, _ := tracker.Model("m")
	if model.ErrorMessage != "embedding service unavailable" {
		t.Errorf("error message: got %q", model.ErrorMessage)
	}
	if model.CompletedAt == nil {
		t.Error("CompletedAt not set on error")
	}
}

func TestModelAggregateCountsRecomputed(t *testing.T) {
	t.Parallel()
	tracker, _ := newTestModelTracker()

	for _, id := range []string{"a", "b", "c"} {
		tracker.Apply(ModelEvent{Model: id, Status: StatusRunning, Progress: 0})
	}
	tracker.Apply(ModelEvent{Model: "a", Status: StatusCompleted, Progress: 100})
	tracker.Apply(ModelEvent{Model: "b", Status: StatusError, Progress: 40})

	if got := tracker.CompletedCount(); got != 2 {
		t.Errorf("CompletedCount: got %d, want 2 (completed + error)", got)
	}
	if got := tracker.Count(); got != 3 {
		t.Errorf("Count: got %d, want 3", got)
	}
}

func TestModelFirstQualifyingScoreTransition(t *testing.T) {
	t.Parallel()
	tracker, clk := newTestModelTracker()

	transitions := tracker.Apply(ModelEvent{Model: "m", Status: StatusRunning, Progress: 10, Score: floatPtr(0.4)})
	if transitions.FirstScore {
		t.Error("below-threshold score reported as FirstScore")
	}

	clk.Advance(time.Second)
	transitions = tracker.Apply(ModelEvent{Model: "m", Status: StatusRunning, Progress: 60, Score: floatPtr(0.91)})
	if !transitions.FirstScore {
		t.Error("first qualifying score not reported")
	}

	clk.Advance(time.Second)
	transitions = tracker.Apply(ModelEvent{Model: "m", Status: StatusRunning, Progress: 80, Score: floatPtr(0.93)})
	if transitions.FirstScore {
		t.Error("repeat qualifying score reported as FirstScore again")
	}
}

func TestModelSeedEnsembleWeights(t *testing.T) {
	t.Parallel()
	tracker, _ := newTestModelTracker()

	tracker.SeedModel("wildlife_tools", 0.3)
	tracker.SeedModel("stripe_net", 0.7)

	models := tracker.Models()
	if len(models) != 2 {
		t.Fatalf("Models: got %d, want 2", len(models))
	}
	if models[0].ID != "wildlife_tools" || models[0].Weight != 0.3 {
		t.Errorf("seeded model: %+v", models[0])
	}
	if models[0].Status != StatusPending {
		t.Errorf("seeded status: got %q, want pending", models[0].Status)
	}
}
