// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject Fake() and drive it with Advance.
//
// Anything in this repository that would call time.Now, time.After,
// time.AfterFunc, or time.Sleep takes a Clock instead (usually as a
// field on the owning struct). The rejoin scheduling in the MUC
// engine and the timestamps in the store both run through a Clock so
// tests are deterministic.
package clock

import "time"

// Clock is the subset of the time package this repository uses.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for duration d and then calls f in its own
	// goroutine (real clock) or synchronously during Advance (fake
	// clock). The returned Timer can cancel the pending call.
	AfterFunc(d time.Duration, f func()) *Timer

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. Returns false if the call already
// ran or was already stopped.
func (t *Timer) Stop() bool { return t.stop() }
