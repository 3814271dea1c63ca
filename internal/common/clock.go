package common

import (
	"sync/atomic"
	"time"
)

// Clock supplies engine timestamps. Injected so deterministic runs and tests
// can replace wall time with a counter.
type Clock interface {
	Now() Timestamp
}

// MonotonicClock reads the runtime's monotonic clock, in nanoseconds from
// process start. Only relative ordering matters.
type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Now() Timestamp {
	return Timestamp(time.Since(c.start).Nanoseconds())
}

// CounterClock hands out strictly increasing integers. Two engines driven by
// identical intents against CounterClocks produce identical outputs.
type CounterClock struct {
	n atomic.Uint64
}

func (c *CounterClock) Now() Timestamp {
	return c.n.Add(1)
}
