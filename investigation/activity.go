// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package investigation

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// ActivityType classifies an activity log entry.
type ActivityType string

const (
	ActivityPhaseStarted   ActivityType = "phase_started"
	ActivityPhaseCompleted ActivityType = "phase_completed"
	ActivityModelStarted   ActivityType = "model_started"
	ActivityModelCompleted ActivityType = "model_completed"
	ActivityMatchFound     ActivityType = "match_found"
	ActivityError          ActivityType = "error"
	ActivityInfo           ActivityType = "info"
)

// ActivityEvent is one immutable entry in the activity log.
type ActivityEvent struct {
	// ID uniquely identifies the entry. When the producer supplies no
	// id, Append derives one from the entry's content, which also
	// dedupes byte-identical duplicates the transport may deliver.
	ID string

	Timestamp time.Time
	Type      ActivityType
	Message   string

	// Phase and Model reference the pipeline entity the entry is
	// about, when there is one.
	Phase PhaseKey
	Model string

	// Metadata carries producer-specific extras. Never mutated after
	// append.
	Metadata map[string]any
}

// DefaultMaxLogEvents is the default activity log capacity.
const DefaultMaxLogEvents = 100

// ScrollTolerance is how close to the bottom of the rendered list the
// viewer must be, in rows, for the log to count as "pinned" and keep
// auto-scroll engaged.
const ScrollTolerance = 10

// ActivityLog is a bounded, append-only event buffer. Insertion order
// is arrival order, not event-timestamp order; when the buffer is
// full the oldest entries are evicted first, so the log always holds
// exactly the most recent maxEvents entries.
//
// The log also owns the auto-scroll flag the rendering layer honors.
// The log never scrolls anything itself — it only decides whether the
// consumer should stay pinned to the newest entry.
//
// Not safe for concurrent use; the Engine serializes access.
type ActivityLog struct {
	maxEvents  int
	events     []ActivityEvent
	buffered   map[string]struct{}
	autoScroll bool
}

// NewActivityLog creates a log holding at most maxEvents entries.
// Non-positive maxEvents selects DefaultMaxLogEvents. Auto-scroll
// starts engaged.
func NewActivityLog(maxEvents int) *ActivityLog {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxLogEvents
	}
	return &ActivityLog{
		maxEvents:  maxEvents,
		buffered:   make(map[string]struct{}),
		autoScroll: true,
	}
}

// Append adds an entry, deriving its ID from content when empty.
// Returns false when an entry with the same ID is already buffered —
// the duplicate-delivery case — in which case the log is unchanged.
func (log *ActivityLog) Append(event ActivityEvent) bool {
	if event.ID == "" {
		event.ID = deriveEventID(event)
	}
	if _, dup := log.buffered[event.ID]; dup {
		return false
	}

	log.events = append(log.events, event)
	log.buffered[event.ID] = struct{}{}

	for len(log.events) > log.maxEvents {
		evicted := log.events[0]
		log.events[0] = ActivityEvent{} // release for GC
		log.events = log.events[1:]
		delete(log.buffered, evicted.ID)
	}
	return true
}

// Events returns the buffered entries, oldest first. The returned
// slice is a copy.
func (log *ActivityLog) Events() []ActivityEvent {
	events := make([]ActivityEvent, len(log.events))
	copy(events, log.events)
	return events
}

// Len returns the number of buffered entries.
func (log *ActivityLog) Len() int {
	return len(log.events)
}

// MaxEvents returns the log's capacity.
func (log *ActivityLog) MaxEvents() int {
	return log.maxEvents
}

// AutoScroll reports whether the rendering layer should pin the view
// to the newest entry when entries are appended.
func (log *ActivityLog) AutoScroll() bool {
	return log.autoScroll
}

// SetAutoScroll sets the flag directly — the explicit user toggle.
// The override holds until the next ObserveScroll evaluation.
func (log *ActivityLog) SetAutoScroll(autoScroll bool) {
	log.autoScroll = autoScroll
}

// ObserveScroll feeds the viewer's current distance from the bottom
// of the rendered list, in rows, into the auto-scroll heuristic:
// within ScrollTolerance of the bottom keeps (or re-engages)
// auto-scroll; any movement farther away releases it.
func (log *ActivityLog) ObserveScroll(distanceFromBottom int) {
	log.autoScroll = distanceFromBottom <= ScrollTolerance
}

// deriveEventID hashes the identifying content of an entry. BLAKE3
// keeps the id short-input fast; 16 bytes of digest is plenty for a
// 100-entry buffer.
func deriveEventID(event ActivityEvent) string {
	hasher := blake3.New()
	fmt.Fprintf(hasher, "%s\x00%d\x00%s\x00%s\x00%s",
		event.Type, event.Timestamp.UnixNano(), event.Message, event.Phase, event.Model)
	digest := hasher.Sum(nil)
	return hex.EncodeToString(digest[:16])
}
