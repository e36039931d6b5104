// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import "time"

// magic identifies a capture file and its format version. Bumping
// the trailing digits is a format break.
const magic = "SSCAP001"

// maxRecordBytes bounds a single decoded record. Anything larger
// than the stream client's frame limit plus record overhead means
// the file is corrupt.
const maxRecordBytes = 2 << 20

// Record is one captured stream frame: the raw envelope bytes as
// delivered by the transport, plus the wall-clock arrival time.
// Envelopes are stored unparsed so a capture preserves malformed
// input too — replay exercises the same drop paths as a live stream.
type Record struct {
	At       time.Time `cbor:"at"`
	Envelope []byte    `cbor:"envelope"`
}
