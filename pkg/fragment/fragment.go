// Package fragment holds the timestamped units of work that flow between
// pipeline stages and the FIFO queues that carry them.
package fragment

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Fragment is an immutable envelope around a stage payload. The delivered
// marker is the only mutable field and flips false→true at most once.
type Fragment[T any] struct {
	ID        string
	CreatedAt time.Time
	Payload   T

	delivered   atomic.Bool
	deliveredAt atomic.Int64
}

// New wraps payload in a fragment stamped with the current time.
func New[T any](payload T) *Fragment[T] {
	return NewAt(payload, time.Now())
}

// NewAt wraps payload in a fragment stamped with createdAt.
func NewAt[T any](payload T, createdAt time.Time) *Fragment[T] {
	return &Fragment[T]{
		ID:        uuid.NewString(),
		CreatedAt: createdAt,
		Payload:   payload,
	}
}

// Delivered reports whether a broadcast for this fragment has succeeded.
func (f *Fragment[T]) Delivered() bool {
	return f.delivered.Load()
}

// DeliveredAt returns when the fragment was marked, or the zero time.
func (f *Fragment[T]) DeliveredAt() time.Time {
	n := f.deliveredAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// MarkDelivered flips the delivered marker. It returns false when the
// fragment was already marked. Only the delivery publisher calls this.
func (f *Fragment[T]) MarkDelivered(at time.Time) bool {
	if !f.delivered.CompareAndSwap(false, true) {
		return false
	}
	f.deliveredAt.Store(at.UnixNano())
	return true
}
