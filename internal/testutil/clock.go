// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"sync"
	"time"
)

// FakeClock reports a pinned time and counts how often it was read. It
// satisfies pipeline.Clock, whose contract is a single read per build.
type FakeClock struct {
	mu    sync.Mutex
	at    time.Time
	reads int
}

// NewFakeClock pins the clock at t. A zero t pins 2020-01-01 UTC.
func NewFakeClock(t time.Time) *FakeClock {
	if t.IsZero() {
		t = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &FakeClock{at: t}
}

// Now returns the pinned time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return c.at
}

// Calls returns how many times Now has been called.
func (c *FakeClock) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
