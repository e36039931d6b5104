// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream implements the dashboard's connection manager: one
// persistent subscription to an investigation's event channel over a
// newline-delimited JSON transport.
//
// The Client owns the connection lifecycle — dial, join handshake,
// read loop, capped exponential backoff with jitter on failure — and
// surfaces two channels: Messages() delivers raw frames in arrival
// order (the engine's single inbound queue), and States() reports
// connection state changes for the connectivity indicator.
//
// Reconnection re-joins the same investigation id and requests no
// replay of missed frames: transitions that occurred during a
// disconnect window are lost until a newer event for the same entity
// arrives. This is a known protocol gap, deliberately left visible
// rather than papered over with a resync protocol the backend does
// not offer. The engine's monotonic apply rules make the duplicates
// that do arrive after a reconnect harmless.
package stream
