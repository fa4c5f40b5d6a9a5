package vm

import (
	"sync/atomic"
	"time"
)

// Timestamp orders frame acquisitions. Only its relative order matters.
type Timestamp uint64

// A Clock stamps frame acquisitions for FIFO victim selection.
type Clock interface {
	Now() Timestamp
}

// LogicalClock ticks once per reading, so no two readings are equal.
type LogicalClock struct {
	ticks uint64
}

// NewLogicalClock creates a LogicalClock.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// Now returns the next tick.
func (c *LogicalClock) Now() Timestamp {
	return Timestamp(atomic.AddUint64(&c.ticks, 1))
}

// WallClock reads the host time in nanoseconds.
type WallClock struct{}

// Now returns the host time.
func (WallClock) Now() Timestamp {
	return Timestamp(time.Now().UnixNano())
}
