package core

import (
	"sync"
	"time"
)

// Clock supplies the ledger timestamp in unix seconds.
type Clock interface {
	Now() int64
}

// WallClock reads the system time.
type WallClock struct{}

func (WallClock) Now() int64 { return time.Now().Unix() }

// ManualClock only moves when told to. Tests and dev deployments use it to
// advance the ledger clock in discrete steps.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock starts the clock at the supplied unix timestamp.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to ts. Moving backwards is ignored.
func (c *ManualClock) Set(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.now {
		c.now = ts
	}
}

// Advance moves the clock forward and returns the new timestamp.
func (c *ManualClock) Advance(d time.Duration) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += int64(d / time.Second)
	}
	return c.now
}
