// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture records and replays the raw investigation event
// stream. A capture file is a transcript of the envelopes the stream
// client delivered, each stamped with its arrival time — it is not a
// snapshot of derived state. Replaying a capture feeds the envelopes
// back through the same normalization and apply path as a live
// stream, so a replayed session reaches the same derived state as
// the original (modulo connection status, which is not an event).
//
// File layout: an 8-byte magic, a 1-byte compression tag, then a
// (possibly compressed) stream of frames. Each frame is a big-endian
// uint32 length followed by that many bytes of CBOR-encoded Record.
package capture
