package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSendFailed reports that a message could not be handed to its
	// accumulator because the mailbox is closed or the caller gave up waiting.
	ErrSendFailed = errors.New("send failed")
	// ErrShutdownIncomplete reports that a final flush was not accepted
	// downstream within the bounded shutdown wait. The buffered data is lost.
	ErrShutdownIncomplete = errors.New("shutdown incomplete")
	// ErrPushFailed reports a downstream push failure observed by the sink.
	ErrPushFailed = errors.New("push failed")
)

// SerializationError wraps an encoder failure for a topic. Nothing is
// enqueued when a SerializationError is returned.
type SerializationError struct {
	Topic string
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize event for topic %q: %v", e.Topic, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}
