package testutil

import (
	"sync"
	"time"

	clocktesting "k8s.io/utils/clock/testing"
)

// Epoch is the start time of every FakeClock, so scenario traces carry the
// same timestamps on every run.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// FakeClock wraps the k8s fake clock and records every wait.
//
// Sleep and After step time forward immediately, so a multi-action with
// 100ms pauses finishes without real waiting. Safe for concurrent use.
type FakeClock struct {
	*clocktesting.FakeClock

	mu     sync.Mutex
	sleeps []time.Duration
}

// NewFakeClock creates a fake clock set to Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{FakeClock: clocktesting.NewFakeClock(Epoch)}
}

func (c *FakeClock) record(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
}

// Sleep records d and steps the clock by d.
func (c *FakeClock) Sleep(d time.Duration) {
	c.record(d)
	c.FakeClock.Sleep(d)
}

// After records d, steps the clock by d and returns the already fired
// channel.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.record(d)
	ch := c.FakeClock.After(d)
	c.FakeClock.Step(d)
	return ch
}

// Sleeps returns the recorded sleep durations in call order.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Elapsed returns how far the clock has moved past Epoch.
func (c *FakeClock) Elapsed() time.Duration {
	return c.Since(Epoch)
}
