// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared helpers for Stripesight tests:
// channel operations with timeout safety valves, so tests that wait on
// the stream client or engine notification channels fail loudly
// instead of hanging the test binary.
package testutil
