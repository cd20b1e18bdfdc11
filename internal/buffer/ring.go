// Package buffer provides a bounded ring used for per-connection message history.
package buffer

import (
	"sync"
)

// Ring is a thread-safe circular buffer that keeps the most recent items up to
// a fixed capacity. When the ring is full, the oldest item is discarded to
// make room for the new one.
//
// Besides the retained items, the ring counts every item ever appended. That
// count only grows, so callers can record it as a watermark and later ask for
// the items appended after it, even if the ring has wrapped in between.
type Ring[T any] struct {
	items    []T
	head     int // index of the oldest item
	size     int
	total    uint64
	capacity int
	mu       sync.RWMutex
}

// NewRing creates a new Ring with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Append adds an item, evicting the oldest one when full.
// It returns the sequence number of the item, starting at 1.
func (r *Ring[T]) Append(v T) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < r.capacity {
		r.items[(r.head+r.size)%r.capacity] = v
		r.size++
	} else {
		r.items[r.head] = v
		r.head = (r.head + 1) % r.capacity
	}
	r.total++
	return r.total
}

// Tail returns a copy of the most recent n items, oldest first.
// n <= 0 returns every retained item.
func (r *Ring[T]) Tail(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.size {
		n = r.size
	}
	return r.copyLocked(r.size-n, n)
}

// Since returns the retained items whose sequence number is greater than seq,
// oldest first. Items that were already evicted are not returned.
func (r *Ring[T]) Since(seq uint64) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if seq >= r.total {
		return nil
	}
	n := r.total - seq
	if n > uint64(r.size) {
		n = uint64(r.size)
	}
	return r.copyLocked(r.size-int(n), int(n))
}

// Last returns the most recent item.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.head+r.size-1)%r.capacity], true
}

// Clear removes all retained items. The total count is kept.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}

// Len returns the number of retained items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.size
}

// Total returns the number of items ever appended.
func (r *Ring[T]) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.total
}

// Cap returns the capacity of the ring.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// copyLocked copies n items starting at logical offset from (0 = oldest).
func (r *Ring[T]) copyLocked(from, n int) []T {
	if n == 0 {
		return nil
	}
	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = r.items[(r.head+from+i)%r.capacity]
	}
	return result
}
