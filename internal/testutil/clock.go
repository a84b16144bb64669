package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the instant a DeterministicClock starts from.
var DefaultEpoch = time.UnixMilli(1_700_000_000_000).UTC()

// DeterministicClock is a thread-safe clock for tests that advances one
// millisecond per reading.
//
// Entry timestamps taken from it are distinct and strictly increasing, so
// tests can assert on created/modified dates without sleeping. It can be
// reset for test reuse: the same scenario then produces identical
// timestamps.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch time.Time
	seq   int64
}

// NewDeterministicClock creates a clock starting at DefaultEpoch.
//
// The first call to Now() returns DefaultEpoch + 1ms.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{epoch: DefaultEpoch}
}

// NewDeterministicClockAt creates a clock starting at epoch.
func NewDeterministicClockAt(epoch time.Time) *DeterministicClock {
	return &DeterministicClock{epoch: epoch}
}

// Now advances the clock by one millisecond and returns the new instant.
func (c *DeterministicClock) Now() time.Time {
	return c.epoch.Add(time.Duration(c.Next()) * time.Millisecond)
}

// Next increments and returns the tick count.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the tick count without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Millis returns the epoch-millisecond value of tick n.
func (c *DeterministicClock) Millis(n int64) int64 {
	return c.epoch.UnixMilli() + n
}

// Reset rewinds the clock to its epoch.
//
// After Reset(), the next call to Now() returns epoch + 1ms again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
