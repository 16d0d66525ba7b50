// Package latest provides a single-slot mailbox that always holds the most
// recent value. Publishing never blocks: an unread value is replaced.
package latest

import (
	"context"
	"time"
)

// Mailbox holds at most one unread value of T.
// It supports a single publisher and any number of consumers.
type Mailbox[T any] struct {
	ch chan T
}

// New returns an empty mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, 1)}
}

// Put stores v, replacing any value nobody has taken yet.
func (m *Mailbox[T]) Put(v T) {
	for {
		select {
		case m.ch <- v:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// TryGet takes the pending value without waiting.
func (m *Mailbox[T]) TryGet() (T, bool) {
	select {
	case v := <-m.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Get waits up to timeout for a value. A non-positive timeout waits until ctx
// is done.
func (m *Mailbox[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case v := <-m.ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Clear drops the pending value, if any.
func (m *Mailbox[T]) Clear() {
	select {
	case <-m.ch:
	default:
	}
}

// Pending reports whether an unread value is waiting.
func (m *Mailbox[T]) Pending() bool {
	return len(m.ch) > 0
}
