// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

// Package investigation implements the client-side telemetry engine
// for a Stripesight identification run: a six-phase pipeline, each
// phase optionally fanning out to a weighted model ensemble. The
// engine consumes the dashboard event stream, reconciles out-of-order
// and duplicate frames into consistent state, and derives the values
// the dashboard renders.
//
// The package is organized around the event data flow:
//
//   - event.go: wire envelope and the closed set of normalized events
//   - phase.go: the ordered six-phase state machine
//   - model.go: per-model status, progress, and timing
//   - agreement.go: pure ensemble agreement tier calculation
//   - activity.go: bounded activity log with auto-scroll semantics
//   - metrics.go: pure projection of display-ready metrics
//   - engine.go: the aggregate tying the above to one inbound queue
//
// All state transitions are monotonic and idempotent: a frame whose
// timestamp is older than the last applied update for the same entity
// is discarded, so duplicated or reordered delivery cannot regress
// phase or model state. Malformed frames are dropped without error —
// nothing arriving on the stream can crash the engine.
package investigation
