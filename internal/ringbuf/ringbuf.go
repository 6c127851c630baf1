// Package ringbuf provides a bounded ring buffer that keeps the newest items.
// Writers may be many goroutines; readers take a copy with Snapshot.
package ringbuf

import (
	"sync"
	"sync/atomic"
)

// Ring is a fixed-capacity buffer. When full, Push overwrites the oldest item.
// Size is a power of two for fast bitwise modulo.
type Ring[T any] struct {
	mu   sync.Mutex
	buf  []T
	mask uint64
	head uint64 // total pushes

	// Overwritten items (atomic, for metrics)
	overflow atomic.Uint64
}

// New creates a ring buffer. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New[T any](capacity int) *Ring[T] {
	size := nextPow2(capacity)
	if size < 2 {
		size = 2
	}
	return &Ring[T]{
		buf:  make([]T, size),
		mask: uint64(size - 1),
	}
}

// Push appends v, evicting the oldest item when the ring is full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	if r.head >= uint64(len(r.buf)) {
		r.overflow.Add(1)
	}
	r.buf[r.head&r.mask] = v
	r.head++
	r.mu.Unlock()
}

// Snapshot returns the held items, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.len()
	out := make([]T, 0, n)
	for i := r.head - uint64(n); i < r.head; i++ {
		out = append(out, r.buf[i&r.mask])
	}
	return out
}

// Last returns the newest item.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if r.head == 0 {
		return zero, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// Len returns the current number of items in the buffer.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.len()
}

func (r *Ring[T]) len() int {
	if r.head < uint64(len(r.buf)) {
		return int(r.head)
	}
	return len(r.buf)
}

// Total returns the number of items ever pushed.
func (r *Ring[T]) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Overflow returns the number of items evicted by newer pushes.
func (r *Ring[T]) Overflow() uint64 {
	return r.overflow.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
