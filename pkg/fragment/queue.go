package fragment

import (
	"sync"
	"time"
)

// Stats counts queue traffic since creation.
type Stats struct {
	Pushed  int64
	Popped  int64
	Evicted int64
}

// Queue is an ordered producer/consumer buffer of fragments. Every operation
// is serialized, so concurrent producers can push while the single consumer
// drains or pops without loss, duplication or reordering.
type Queue[T any] struct {
	mu    sync.Mutex
	items []*Fragment[T]
	stats Stats
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push wraps payload in a new fragment and appends it.
func (q *Queue[T]) Push(payload T) *Fragment[T] {
	f := New(payload)
	q.PushFragment(f)
	return f
}

// PushFragment appends an existing fragment. It never blocks and never fails.
func (q *Queue[T]) PushFragment(f *Fragment[T]) {
	if f == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, f)
	q.stats.Pushed++
	q.mu.Unlock()
}

// DrainAll removes and returns every queued fragment in insertion order.
func (q *Queue[T]) DrainAll() []*Fragment[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	q.stats.Popped += int64(len(out))
	return out
}

// PopFront removes and returns the earliest fragment.
func (q *Queue[T]) PopFront() (*Fragment[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	f := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.stats.Popped++
	return f, true
}

// Pending returns the undelivered fragments in FIFO order without removing
// them. Result queues are scanned this way instead of popped.
func (q *Queue[T]) Pending() []*Fragment[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Fragment[T]
	for _, f := range q.items {
		if !f.Delivered() {
			out = append(out, f)
		}
	}
	return out
}

// EvictDelivered drops fragments that were delivered before cutoff and
// returns how many were removed. Undelivered fragments are always kept.
func (q *Queue[T]) EvictDelivered(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, f := range q.items {
		if f.Delivered() && f.DeliveredAt().Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	q.stats.Evicted += int64(removed)
	return removed
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}
