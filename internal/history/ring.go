// Package history keeps a bounded window of recent runtime events.
package history

import "sync"

// Ring is a fixed-capacity FIFO that evicts the oldest element on overflow.
//
// Append and Snapshot may be called from any number of goroutines. Append holds
// the lock only for an index update and one element copy, so it is safe to call
// from latency-sensitive callbacks.
type Ring[T any] struct {
	mu   sync.Mutex
	buf  []T
	head int // index of the oldest element
	size int
}

// NewRing creates a ring holding at most capacity elements.
// A capacity of zero (or less) disables retention.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append inserts v, evicting the oldest element when the ring is full.
func (r *Ring[T]) Append(v T) {
	if len(r.buf) == 0 {
		return
	}
	r.mu.Lock()
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
	} else {
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
	}
	r.mu.Unlock()
}

// Snapshot returns an independent copy of the contents, oldest first.
// The returned slice is never nil.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of retained elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Reset drops every retained element.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head, r.size = 0, 0
	r.mu.Unlock()
}
