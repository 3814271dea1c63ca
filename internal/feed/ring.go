// Package feed publishes trade events out of band on a dedicated goroutine,
// fed through a single-producer single-consumer ring.
package feed

import "sync/atomic"

const cacheLineSize = 64

// Ring is a fixed-capacity SPSC ring buffer. Exactly one goroutine may call
// TryEnqueue and exactly one may call TryDequeue; with that contract every
// enqueued item is dequeued exactly once, in order, and neither side blocks.
//
// The size is rounded up to a power of two and one slot stays reserved to
// distinguish full from empty, so the usable capacity is size-1. Head and
// tail live on separate cache lines to avoid false sharing. Go's atomics
// carry sequentially consistent ordering, which subsumes the acquire/release
// pairing the head/tail handshake needs.
type Ring[T any] struct {
	buf  []T
	mask uint64

	_    [cacheLineSize]byte
	head atomic.Uint64 // next slot to dequeue; moved by the consumer
	_    [cacheLineSize]byte
	tail atomic.Uint64 // next slot to fill; moved by the producer
	_    [cacheLineSize]byte
}

// NewRing sizes the ring to the next power of two >= capacity.
func NewRing[T any](capacity int) *Ring[T] {
	size := roundUpPowerOfTwo(capacity)
	return &Ring[T]{
		buf:  make([]T, size),
		mask: size - 1,
	}
}

// TryEnqueue appends an item, returning false when the ring is full.
// Producer side only.
func (r *Ring[T]) TryEnqueue(item T) bool {
	tail := r.tail.Load()
	next := (tail + 1) & r.mask
	if next == r.head.Load() {
		return false
	}
	r.buf[tail] = item
	r.tail.Store(next)
	return true
}

// TryDequeue removes the oldest item, reporting false when the ring is
// empty. Consumer side only.
func (r *Ring[T]) TryDequeue() (T, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		var zero T
		return zero, false
	}
	item := r.buf[head]
	var zero T
	r.buf[head] = zero
	r.head.Store((head + 1) & r.mask)
	return item, true
}

func (r *Ring[T]) Empty() bool {
	return r.head.Load() == r.tail.Load()
}

// Len is approximate while both sides are live.
func (r *Ring[T]) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail >= head {
		return int(tail - head)
	}
	return int(uint64(len(r.buf)) - head + tail)
}

// Cap is the usable capacity: one slot is reserved.
func (r *Ring[T]) Cap() int { return len(r.buf) - 1 }

func roundUpPowerOfTwo(n int) uint64 {
	if n <= 1 {
		return 2
	}
	v := uint64(n - 1)
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}
