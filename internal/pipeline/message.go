package pipeline

import (
	"fmt"
	"time"
)

// Message is a serialized payload accepted for a topic. The topic itself is
// implied by the accumulator that buffers the message.
type Message struct {
	// Payload is the opaque encoded event. It must not be mutated once enqueued.
	Payload []byte
	// EnqueuedAt is the time the accumulator appended the message to its buffer.
	EnqueuedAt time.Time
}

// FlushReason records which trigger produced a Batch.
type FlushReason string

// Supported flush triggers.
const (
	FlushSize     FlushReason = "size"
	FlushTimeout  FlushReason = "timeout"
	FlushShutdown FlushReason = "shutdown"
)

// Batch is an ordered group of messages collected for one topic. Batches are
// created only by an accumulator flush and consumed exactly once by the sink.
type Batch struct {
	// ID uniquely identifies the batch (UUIDv7 so IDs sort by flush time).
	ID string
	// Topic is the destination the messages were collected for.
	Topic string
	// Messages preserves arrival order.
	Messages []Message
	// Reason is the trigger that closed the batch.
	Reason FlushReason
	// FlushedAt is when the accumulator took the buffer.
	FlushedAt time.Time
}

// Len returns the number of messages in the batch.
func (b Batch) Len() int {
	return len(b.Messages)
}

// Payloads returns the raw payloads in order.
func (b Batch) Payloads() [][]byte {
	out := make([][]byte, len(b.Messages))
	for i, msg := range b.Messages {
		out[i] = msg.Payload
	}
	return out
}

// Validate performs coarse validation before a batch is handed downstream.
func (b Batch) Validate() error {
	if b.Topic == "" {
		return fmt.Errorf("batch topic is required")
	}
	if len(b.Messages) == 0 {
		return fmt.Errorf("batch %s has no messages", b.ID)
	}
	switch b.Reason {
	case FlushSize, FlushTimeout, FlushShutdown:
	default:
		return fmt.Errorf("unknown flush reason %q", b.Reason)
	}
	return nil
}
