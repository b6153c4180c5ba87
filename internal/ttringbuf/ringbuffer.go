// Package ttringbuf provides a fixed-capacity ring buffer, used by retention
// policies that keep the most recent N samples.
package ttringbuf

import (
	"sync"
)

// RingBuffer is a fixed-size collection of recent items. When the buffer is
// full, adding an item evicts the oldest one.
type RingBuffer[T any] struct {
	mtx sync.Mutex
	buf []T // fully allocated at construction
	cur int // index for next write, walk backwards to read
	len int // count of actual values
}

// NewRingBuffer returns an empty ring buffer of items, pre-allocated with the
// given capacity.
func NewRingBuffer[T any](cap int) *RingBuffer[T] {
	if cap < 0 {
		cap = 0
	}
	return &RingBuffer[T]{
		buf: make([]T, cap),
	}
}

// Cap returns the capacity of the ring buffer.
func (rb *RingBuffer[T]) Cap() int {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()
	return len(rb.buf)
}

// Len returns the number of items in the ring buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()
	return rb.len
}

// Add the value to the ring buffer. If the ring buffer was full and an item was
// evicted by this add, return that item and true, otherwise return a zero value
// and false. Adding to a zero-capacity buffer does nothing.
func (rb *RingBuffer[T]) Add(val T) (dropped T, ok bool) {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	if len(rb.buf) <= 0 {
		var zero T
		return zero, false
	}

	if rb.len >= len(rb.buf) {
		dropped, ok = rb.buf[rb.cur], true
	}

	rb.buf[rb.cur] = val

	if rb.len < len(rb.buf) {
		rb.len++
	}

	rb.cur++
	if rb.cur >= len(rb.buf) {
		rb.cur -= len(rb.buf)
	}

	return dropped, ok
}

// Walk calls the given function for each value in the ring buffer, starting
// with the most recent value, and ending with the oldest value. Walk holds the
// ring buffer lock, so fn must not call other methods of the buffer.
func (rb *RingBuffer[T]) Walk(fn func(T) error) error {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	for i := 0; i < rb.len; i++ {
		if err := fn(rb.buf[rb.index(i)]); err != nil {
			return err
		}
	}

	return nil
}

// Snapshot returns a copy of the values in the ring buffer, oldest first.
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()
	return rb.snapshot()
}

// Drain returns the values in the ring buffer, oldest first, and leaves it
// empty with the same capacity.
func (rb *RingBuffer[T]) Drain() []T {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	vals := rb.snapshot()
	rb.clear()
	return vals
}

// Reset removes every value from the ring buffer.
func (rb *RingBuffer[T]) Reset() {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()
	rb.clear()
}

// Resize changes the capacity of the ring buffer. If the new capacity is
// smaller than the number of values, the oldest values are dropped and
// returned, oldest first. Non-positive capacities are ignored.
func (rb *RingBuffer[T]) Resize(cap int) (dropped []T) {
	if cap <= 0 {
		return nil
	}

	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	vals := rb.snapshot()
	if n := len(vals) - cap; n > 0 {
		dropped, vals = vals[:n], vals[n:]
	}

	buf := make([]T, cap)
	copy(buf, vals)

	rb.buf = buf
	rb.len = len(vals)
	rb.cur = len(vals) % cap

	return dropped
}

// index returns the buffer index of the i'th most recent value.
func (rb *RingBuffer[T]) index(i int) int {
	idx := rb.cur - 1 - i
	if idx < 0 {
		idx += len(rb.buf)
	}
	return idx
}

func (rb *RingBuffer[T]) snapshot() []T {
	vals := make([]T, rb.len)
	for i := 0; i < rb.len; i++ {
		vals[rb.len-1-i] = rb.buf[rb.index(i)]
	}
	return vals
}

func (rb *RingBuffer[T]) clear() {
	var zero T
	for i := range rb.buf {
		rb.buf[i] = zero // release references
	}
	rb.cur, rb.len = 0, 0
}
