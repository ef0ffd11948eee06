// Package mailbox provides the bounded, ordered inbound queue owned by each
// processing unit of the pipeline. A full mailbox blocks senders, which is how
// backpressure travels upstream.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Send once the mailbox has been closed.
var ErrClosed = errors.New("mailbox closed")

// Mailbox is a bounded FIFO queue with context-aware sends. A single consumer
// reads from Receive; any number of goroutines may Send.
type Mailbox[T any] struct {
	ch     chan T
	mu     sync.RWMutex
	closed bool
}

// New constructs a mailbox holding at most capacity pending values. A
// capacity of zero makes every Send a rendezvous with the consumer.
func New[T any](capacity int) *Mailbox[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Mailbox[T]{ch: make(chan T, capacity)}
}

// Send enqueues v, blocking while the mailbox is full. It fails with ErrClosed
// once Close has been called, or with the context error if ctx ends first.
func (m *Mailbox[T]) Send(ctx context.Context, v T) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// The read lock is held across the blocking send so Close cannot close the
	// channel underneath an in-flight sender.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.ch <- v:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mailbox send canceled: %w", ctx.Err())
	}
}

// Receive exposes the consumer side. The channel is closed after Close once
// every accepted value has been delivered.
func (m *Mailbox[T]) Receive() <-chan T {
	return m.ch
}

// Close stops accepting values. It waits for in-flight senders to finish, so
// the consumer must keep draining Receive until the channel is closed. Calling
// Close more than once is safe.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

// Closed reports whether Close has completed.
func (m *Mailbox[T]) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Len returns the number of values waiting to be received.
func (m *Mailbox[T]) Len() int {
	return len(m.ch)
}

// Cap returns the mailbox capacity.
func (m *Mailbox[T]) Cap() int {
	return cap(m.ch)
}
