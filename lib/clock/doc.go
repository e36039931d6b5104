// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling
// time.Now, time.After, time.NewTicker, or time.Sleep directly. In
// production, Real() provides the standard library behavior. In tests,
// Fake() provides a deterministic clock that advances only when
// Advance is called.
//
// The stream client's reconnect backoff and the model tracker's
// arrival stamps both run on an injected Clock, so the idempotence and
// backoff tests never sleep on real time.
//
// When a goroutine calls Sleep, After, or NewTicker on a FakeClock, it
// registers a pending waiter. Tests use WaitForWaiters to block until
// a specific number of waiters are registered before calling Advance,
// which removes the race between timer registration and time
// advancement.
package clock
