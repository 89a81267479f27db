package pipeline

import (
	"context"
	"sync"
)

// mailbox is an unbounded FIFO with a blocking receive. Senders never block.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	wake   chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{wake: make(chan struct{}, 1)}
}

// push appends v and reports false if the mailbox is closed.
func (m *mailbox[T]) push(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	m.items = append(m.items, v)
	m.signal()

	return true
}

// close stops accepting items. Queued items can still be received.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.closed = true
	m.signal()
}

// signal must be called with mu held.
func (m *mailbox[T]) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// receive returns the oldest item. ok is false once the mailbox is closed and
// empty. Queued items are returned even after ctx is done.
func (m *mailbox[T]) receive(ctx context.Context) (item T, ok bool, err error) {
	for {
		m.mu.Lock()

		if len(m.items) > 0 {
			item = m.items[0]

			var zero T

			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()

			return item, true, nil
		}

		closed := m.closed
		m.mu.Unlock()

		if closed {
			return item, false, nil
		}

		select {
		case <-m.wake:
		case <-ctx.Done():
			return item, false, context.Cause(ctx)
		}
	}
}
