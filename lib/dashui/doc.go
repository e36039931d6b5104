// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashui is the bubbletea model for the investigation
// dashboard. It renders the derived view of an investigation.Engine:
// phase progress, per-model status, the agreement badge, and the
// bounded activity log in a scrollable viewport.
//
// The model never computes domain state itself. The engine owns all
// aggregation; the UI snapshots engine.View() when a refresh message
// arrives and renders that snapshot. Scroll position flows the other
// way: viewport movement is reported to the engine, which decides
// whether the log stays pinned to the newest entry.
package dashui
