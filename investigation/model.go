// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package investigation

import (
	"math"
	"time"

	"github.com/stripesight/stripesight/lib/clock"
)

// Model is one member of the ensemble for the active phase.
type Model struct {
	ID string

	// Weight comes from the ensemble definition and never changes at
	// runtime. Models discovered from the stream without a seeded
	// definition get weight 1.
	Weight float64

	Status Status

	// Progress is clamped into [0,100] whatever the wire reported.
	Progress float64

	// StartedAt is set the first time the model becomes running and
	// never overwritten. CompletedAt is set the first time the model
	// reaches a terminal state, and only after StartedAt.
	StartedAt   *time.Time
	CompletedAt *time.Time

	// EmbeddingsCount is the reported embedding count, when known.
	EmbeddingsCount *int

	// Score is the model's similarity score in [0,1], when reported.
	// Feeds the agreement calculation.
	Score *float64

	// ErrorMessage accompanies StatusError.
	ErrorMessage string

	lastEventTimestamp float64
}

// ProcessingTime returns CompletedAt - StartedAt when both are set.
func (model *Model) ProcessingTime() (time.Duration, bool) {
	if model.StartedAt == nil || model.CompletedAt == nil {
		return 0, false
	}
	return model.CompletedAt.Sub(*model.StartedAt), true
}

// ModelTransitions describes what an applied model event changed.
// The engine uses these flags to emit activity entries exactly once
// per transition, however many progress frames repeat the status.
type ModelTransitions struct {
	Applied        bool
	BecameRunning  bool
	BecameTerminal bool

	// FirstScore is set when the event carried the model's first
	// reported score at or above the engine's agreement threshold.
	FirstScore bool
}

// ModelTracker maintains one record per ensemble model, created
// lazily on the first event that references the model. Transitions
// follow the same timestamp-driven stale-discard rule as phases; a
// model event without a wire timestamp is stamped with the arrival
// time from the injected clock, so duplicate frames replayed during a
// reconnect window cannot regress terminal state.
//
// Not safe for concurrent use; the Engine serializes access.
type ModelTracker struct {
	clock     clock.Clock
	threshold float64
	models    map[string]*Model

	// order preserves first-seen order so Models() is stable across
	// calls — map iteration order would make the dashboard flicker.
	order []string
}

// NewModelTracker creates an empty tracker. The threshold is the
// agreement score threshold used to flag FirstScore transitions.
func NewModelTracker(clk clock.Clock, threshold float64) *ModelTracker {
	if clk == nil {
		clk = clock.Real()
	}
	return &ModelTracker{
		clock:     clk,
		threshold: threshold,
		models:    make(map[string]*Model),
	}
}

// SeedModel registers a model with its configured weight before any
// stream events arrive. Seeding an already-tracked model updates only
// the weight.
func (tracker *ModelTracker) SeedModel(id string, weight float64) {
	if id == "" {
		return
	}
	if weight <= 0 {
		weight = 1
	}
	if existing, ok := tracker.models[id]; ok {
		existing.Weight = weight
		return
	}
	tracker.models[id] = &Model{
		ID:                 id,
		Weight:             weight,
		Status:             StatusPending,
		lastEventTimestamp: math.Inf(-1),
	}
	tracker.order = append(tracker.order, id)
}

// Apply applies a model event and reports what changed. A stale event
// (timestamp older than the newest applied for that model) returns
// zero transitions.
func (tracker *ModelTracker) Apply(event ModelEvent) ModelTransitions {
	model, ok := tracker.models[event.Model]
	if !ok {
		tracker.SeedModel(event.Model, 1)
		model = tracker.models[event.Model]
	}

	timestamp := event.Timestamp
	if timestamp == 0 {
		timestamp = unixSeconds(tracker.clock.Now())
	}
	if timestamp < model.lastEventTimestamp {
		return ModelTransitions{}
	}

	transitions := ModelTransitions{Applied: true}
	wasStatus := model.Status

	model.Status = event.Status
	model.Progress = clampProgress(event.Progress)
	model.lastEventTimestamp = timestamp

	if event.Embeddings != nil {
		model.EmbeddingsCount = event.Embeddings
	}
	if event.Score != nil {
		hadQualifyingScore := model.Score != nil && *model.Score >= tracker.threshold
		model.Score = event.Score
		if !hadQualifyingScore && *event.Score >= tracker.threshold {
			transitions.FirstScore = true
		}
	}
	if event.ErrorMessage != "" {
		model.ErrorMessage = event.ErrorMessage
	}

	if event.Status == StatusRunning && model.StartedAt == nil {
		started := tracker.clock.Now()
		model.StartedAt = &started
		transitions.BecameRunning = true
	}
	if event.Status.Terminal() && !wasStatus.Terminal() && model.CompletedAt == nil {
		// CompletedAt only makes sense after a start; a model that
		// jumps straight to a terminal state gets both stamps so the
		// derived processing time stays defined.
		completed := tracker.clock.Now()
		if model.StartedAt == nil {
			model.StartedAt = &completed
		}
		model.CompletedAt = &completed
		transitions.BecameTerminal = true
	}

	if event.ProcessingTime != nil && model.StartedAt != nil && model.CompletedAt == nil {
		// Backend-reported wall time pins CompletedAt when the stream
		// delivers completion before our own clock stamp would.
		completed := model.StartedAt.Add(time.Duration(*event.ProcessingTime * float64(time.Second)))
		if event.Status.Terminal() {
			model.CompletedAt = &completed
		}
	}

	return transitions
}

// Model returns the tracked record for id.
func (tracker *ModelTracker) Model(id string) (Model, bool) {
	model, ok := tracker.models[id]
	if !ok {
		return Model{}, false
	}
	return *model, true
}

// Models returns all tracked models in first-seen order. The
// returned slice holds copies.
func (tracker *ModelTracker) Models() []Model {
	models := make([]Model, 0, len(tracker.order))
	for _, id := range tracker.order {
		models = append(models, *tracker.models[id])
	}
	return models
}

// CompletedCount returns the number of models in a terminal state.
// Recomputed from the canonical records on every call; the tracker
// never maintains a separate counter that could drift.
func (tracker *ModelTracker) CompletedCount() int {
	count := 0
	for _, model := range tracker.models {
		if model.Status.Terminal() {
			count++
		}
	}
	return count
}

// Count returns the number of tracked models.
func (tracker *ModelTracker) Count() int {
	return len(tracker.models)
}

// Scores returns the reported scores of all tracked models, in
// first-seen order. Models without a score are omitted.
func (tracker *ModelTracker) Scores() []float64 {
	scores := make([]float64, 0, len(tracker.order))
	for _, id := range tracker.order {
		if score := tracker.models[id].Score; score != nil {
			scores = append(scores, *score)
		}
	}
	return scores
}

// clampProgress forces a reported progress value into [0,100]. NaN
// clamps to 0 — a poisoned float must not stick the dashboard.
func clampProgress(progress float64) float64 {
	if math.IsNaN(progress) || progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// unixSeconds converts a time to fractional Unix seconds, the unit
// the wire protocol uses for timestamps.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
