// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, time.AfterFunc, or time.NewTicker directly. Real() provides
// standard library behavior; Fake() provides a deterministic clock that
// advances only under test control.
//
// The chat session's debounce and coalescing timers and the transport's
// reconnect backoff all run through a Clock, so tests drive them with
// Advance instead of sleeping:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	session := chat.NewSession(chat.SessionConfig{Clock: c, ...})
//	// ... trigger a streaming event ...
//	c.Advance(20 * time.Millisecond) // fire the coalescing flush
//
// When the code under test registers timers from another goroutine, use
// WaitForTimers to close the race between registration and Advance.
package clock
