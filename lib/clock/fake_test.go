// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNowAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)
	if !fake.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", fake.Now(), start)
	}
	fake.Advance(time.Minute)
	if !fake.Now().Equal(start.Add(time.Minute)) {
		t.Errorf("Now() after advance = %v", fake.Now())
	}
}

func TestFakeAfterFunc(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	fired := 0
	fake.AfterFunc(5*time.Second, func() { fired++ })
	if fired != 0 {
		t.Fatal("callback ran before deadline")
	}
	if got := fake.PendingWaiters(); got != 1 {
		t.Errorf("PendingWaiters() = %d, want 1", got)
	}
	fake.Advance(4 * time.Second)
	if fired != 0 {
		t.Fatal("callback ran too early")
	}
	fake.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("callback fired %d times, want 1", fired)
	}
	fake.Advance(time.Hour)
	if fired != 1 {
		t.Fatal("callback fired again after completion")
	}
}

func TestFakeAfterFuncImmediate(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	fired := false
	fake.AfterFunc(0, func() { fired = true })
	if !fired {
		t.Error("zero-duration callback should run synchronously")
	}
}

func TestFakeTimerStop(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	fired := false
	timer := fake.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Error("first Stop should report true")
	}
	if timer.Stop() {
		t.Error("second Stop should report false")
	}
	fake.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestFakeAfterOrdering(t *testing.T) {
	fake := Fake(time.Unix(100, 0))
	first := fake.After(time.Second)
	second := fake.After(2 * time.Second)
	fake.Advance(3 * time.Second)
	firstAt := <-first
	secondAt := <-second
	if !firstAt.Before(secondAt) {
		t.Errorf("waiters fired out of order: %v then %v", firstAt, secondAt)
	}
}
