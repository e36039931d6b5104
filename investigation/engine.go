// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package investigation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stripesight/stripesight/lib/clock"
)

// DefaultAgreementThreshold is the score at or above which a model
// counts as agreeing, when the configuration does not override it.
const DefaultAgreementThreshold = 0.7

// Config configures an Engine.
type Config struct {
	// InvestigationID identifies the investigation this engine owns.
	// Events for a different investigation are never comparable with
	// this engine's state — switching ids means constructing a fresh
	// engine, not reconfiguring this one.
	InvestigationID string

	// AgreementThreshold is the model score cut-off for agreement.
	// Zero selects DefaultAgreementThreshold.
	AgreementThreshold float64

	// MaxLogEvents caps the activity log. Zero selects
	// DefaultMaxLogEvents.
	MaxLogEvents int

	// Clock is used for arrival stamps on model events that carry no
	// wire timestamp. Nil selects the real clock.
	Clock clock.Clock

	// Logger receives drop diagnostics at debug level. Nil selects
	// slog.Default().
	Logger *slog.Logger
}

// Engine is the Investigation aggregate: the six-phase tracker, the
// model tracker, the activity log, and the last reported connection
// state, all owned by a single dashboard session.
//
// Process applies one raw frame at a time under the engine's lock —
// an event is either fully applied or fully discarded, never half of
// each. Callers deliver frames from a single goroutine (the stream
// client's message channel is the inbound queue); read methods are
// safe from any goroutine and return copies.
type Engine struct {
	id        string
	threshold float64
	clock     clock.Clock
	logger    *slog.Logger

	mu         sync.Mutex
	phases     *PhaseTracker
	models     *ModelTracker
	activity   *ActivityLog
	connection ConnectionState

	applied   uint64
	stale     uint64
	malformed uint64

	// notify coalesces "derived state changed" signals; capacity 1,
	// non-blocking sends. refresh does the same for
	// investigation_update frames, which the dashboard answers with
	// an out-of-band snapshot fetch.
	notify  chan struct{}
	refresh chan struct{}
}

// NewEngine constructs the aggregate for one investigation, with all
// phases pending and no models tracked.
func NewEngine(config Config) *Engine {
	threshold := config.AgreementThreshold
	if threshold == 0 {
		threshold = DefaultAgreementThreshold
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		id:         config.InvestigationID,
		threshold:  threshold,
		clock:      clk,
		logger:     logger,
		phases:     NewPhaseTracker(),
		models:     NewModelTracker(clk, threshold),
		activity:   NewActivityLog(config.MaxLogEvents),
		connection: ConnConnecting,
		notify:     make(chan struct{}, 1),
		refresh:    make(chan struct{}, 1),
	}
}

// InvestigationID returns the id this engine owns.
func (engine *Engine) InvestigationID() string {
	return engine.id
}

// Notify returns a capacity-1 channel that receives after derived
// state changes. Signals coalesce: a reader that drains the channel
// and re-reads the view always observes the newest state.
func (engine *Engine) Notify() <-chan struct{} {
	return engine.notify
}

// RefreshRequests returns a capacity-1 channel that receives when the
// backend asks the dashboard to refetch the investigation snapshot.
func (engine *Engine) RefreshRequests() <-chan struct{} {
	return engine.refresh
}

// Process normalizes and applies one raw stream frame. Malformed and
// stale frames are dropped silently (counted, logged at debug); they
// never return an error because nothing the transport delivers is
// allowed to stop the stream.
func (engine *Engine) Process(raw []byte) {
	event, ok := Normalize(raw)
	if !ok {
		engine.mu.Lock()
		engine.malformed++
		engine.mu.Unlock()
		engine.logger.Debug("dropped malformed frame", "bytes", len(raw))
		return
	}

	engine.mu.Lock()
	changed := engine.applyLocked(event)
	engine.mu.Unlock()

	if changed {
		engine.signalNotify()
	}
}

// applyLocked dispatches one normalized event. Caller holds mu.
// Returns true when derived state changed and consumers should be
// notified.
func (engine *Engine) applyLocked(event Event) bool {
	switch event := event.(type) {
	case PhaseEvent:
		return engine.applyPhaseLocked(event)
	case ModelEvent:
		return engine.applyModelLocked(event)
	case AgentUpdate:
		return engine.applyAgentLocked(event)
	case InvestigationUpdate:
		select {
		case engine.refresh <- struct{}{}:
		default:
		}
		return false
	default:
		// Normalize only produces the four variants above.
		return false
	}
}

func (engine *Engine) applyPhaseLocked(event PhaseEvent) bool {
	previous, _ := engine.phases.Phase(event.Phase)
	if !engine.phases.Apply(event) {
		engine.stale++
		engine.logger.Debug("discarded stale phase event",
			"phase", event.Phase,
			"status", event.Status,
			"timestamp", event.Timestamp,
			"last_applied", previous.LastEventTimestamp,
		)
		return false
	}
	engine.applied++

	at := timeFromSeconds(event.Timestamp)
	switch {
	case event.Status == StatusRunning && previous.Status != StatusRunning:
		engine.activity.Append(ActivityEvent{
			Timestamp: at,
			Type:      ActivityPhaseStarted,
			Message:   fmt.Sprintf("Phase %s started", event.Phase),
			Phase:     event.Phase,
			Metadata:  event.Data,
		})
	case event.Status == StatusCompleted && previous.Status != StatusCompleted:
		engine.activity.Append(ActivityEvent{
			Timestamp: at,
			Type:      ActivityPhaseCompleted,
			Message:   fmt.Sprintf("Phase %s completed", event.Phase),
			Phase:     event.Phase,
			Metadata:  event.Data,
		})
	case event.Status == StatusError && previous.Status != StatusError:
		engine.activity.Append(ActivityEvent{
			Timestamp: at,
			Type:      ActivityError,
			Message:   fmt.Sprintf("Phase %s failed", event.Phase),
			Phase:     event.Phase,
			Metadata:  event.Data,
		})
	}
	return true
}

func (engine *Engine) applyModelLocked(event ModelEvent) bool {
	transitions := engine.models.Apply(event)
	if !transitions.Applied {
		engine.stale++
		engine.logger.Debug("discarded stale model event",
			"model", event.Model,
			"status", event.Status,
			"timestamp", event.Timestamp,
		)
		return false
	}
	engine.applied++

	at := engine.clock.Now()
	if event.Timestamp != 0 {
		at = timeFromSeconds(event.Timestamp)
	}

	if transitions.BecameRunning {
		engine.activity.Append(ActivityEvent{
			Timestamp: at,
			Type:      ActivityModelStarted,
			Message:   fmt.Sprintf("Model %s started", event.Model),
			Model:     event.Model,
		})
	}
	if transitions.FirstScore && event.Score != nil {
		engine.activity.Append(ActivityEvent{
			Timestamp: at,
			Type:      ActivityMatchFound,
			Message:   fmt.Sprintf("Model %s matched with score %.2f", event.Model, *event.Score),
			Model:     event.Model,
			Metadata:  map[string]any{"score": *event.Score},
		})
	}
	if transitions.BecameTerminal {
		if event.Status == StatusError {
			message := fmt.Sprintf("Model %s failed", event.Model)
			if event.ErrorMessage != "" {
				message = fmt.Sprintf("Model %s failed: %s", event.Model, event.ErrorMessage)
			}
			engine.activity.Append(ActivityEvent{
				Timestamp: at,
				Type:      ActivityError,
				Message:   message,
				Model:     event.Model,
			})
		} else {
			engine.activity.Append(ActivityEvent{
				Timestamp: at,
				Type:      ActivityModelCompleted,
				Message:   fmt.Sprintf("Model %s completed", event.Model),
				Model:     event.Model,
			})
		}
	}
	return true
}

func (engine *Engine) applyAgentLocked(event AgentUpdate) bool {
	message := event.Status
	if event.CurrentTask != "" {
		message = event.CurrentTask
	}
	appended := engine.activity.Append(ActivityEvent{
		Timestamp: timeFromSeconds(event.LastUpdate),
		Type:      ActivityInfo,
		Message:   fmt.Sprintf("%s: %s", event.AgentType, message),
	})
	if appended {
		engine.applied++
	}
	return appended
}

// SetConnectionState records the state reported by the connection
// manager and notifies consumers.
func (engine *Engine) SetConnectionState(state ConnectionState) {
	engine.mu.Lock()
	changed := engine.connection != state
	engine.connection = state
	engine.mu.Unlock()
	if changed {
		engine.signalNotify()
	}
}

// ConnectionState returns the last reported subscription state.
func (engine *Engine) ConnectionState() ConnectionState {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.connection
}

// PhaseSeed is one phase's state from the initial REST snapshot.
type PhaseSeed struct {
	Key       PhaseKey
	Status    Status
	Timestamp float64
}

// ModelSeed registers an ensemble member and its configured weight.
type ModelSeed struct {
	ID     string
	Weight float64
}

// Snapshot is the initial investigation state fetched before
// streaming begins. The fetch itself happens outside the engine.
type Snapshot struct {
	Phases []PhaseSeed
	Models []ModelSeed
}

// Seed loads the initial snapshot. Seeding runs through the same
// stale-discard rules as stream events, so a slow snapshot arriving
// after streaming has started cannot regress newer state.
func (engine *Engine) Seed(snapshot Snapshot) {
	engine.mu.Lock()
	for _, seed := range snapshot.Phases {
		engine.phases.Seed(seed.Key, seed.Status, seed.Timestamp)
	}
	for _, seed := range snapshot.Models {
		engine.models.SeedModel(seed.ID, seed.Weight)
	}
	engine.mu.Unlock()
	engine.signalNotify()
}

// View is a consistent copy of everything the dashboard renders.
type View struct {
	InvestigationID string
	Connection      ConnectionState
	Phases          []Phase
	Models          []Model
	Activity        []ActivityEvent
	AutoScroll      bool
	Metrics         Metrics
}

// View snapshots the aggregate under one lock acquisition, so every
// field is consistent with every other.
func (engine *Engine) View() View {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return View{
		InvestigationID: engine.id,
		Connection:      engine.connection,
		Phases:          engine.phases.Phases(),
		Models:          engine.models.Models(),
		Activity:        engine.activity.Events(),
		AutoScroll:      engine.activity.AutoScroll(),
		Metrics:         DeriveMetrics(engine.phases, engine.models, engine.connection, engine.threshold),
	}
}

// Metrics derives the display metrics from current state.
func (engine *Engine) Metrics() Metrics {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return DeriveMetrics(engine.phases, engine.models, engine.connection, engine.threshold)
}

// ObserveScroll forwards a scroll-position report to the activity
// log's auto-scroll heuristic.
func (engine *Engine) ObserveScroll(distanceFromBottom int) {
	engine.mu.Lock()
	engine.activity.ObserveScroll(distanceFromBottom)
	engine.mu.Unlock()
}

// SetAutoScroll applies the explicit user toggle.
func (engine *Engine) SetAutoScroll(autoScroll bool) {
	engine.mu.Lock()
	engine.activity.SetAutoScroll(autoScroll)
	engine.mu.Unlock()
	engine.signalNotify()
}

// AutoScroll reports whether the activity view should stay pinned to
// the newest entry.
func (engine *Engine) AutoScroll() bool {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.activity.AutoScroll()
}

// Stats reports the engine's frame accounting.
type Stats struct {
	Applied   uint64
	Stale     uint64
	Malformed uint64
}

// Stats returns cumulative frame counts since construction.
func (engine *Engine) Stats() Stats {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return Stats{Applied: engine.applied, Stale: engine.stale, Malformed: engine.malformed}
}

func (engine *Engine) signalNotify() {
	select {
	case engine.notify <- struct{}{}:
	default:
	}
}

// timeFromSeconds converts a wire timestamp (fractional Unix seconds)
// to a time.Time.
func timeFromSeconds(seconds float64) time.Time {
	return time.Unix(0, int64(seconds*float64(time.Second)))
}
