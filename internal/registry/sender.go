package registry

import (
	"context"
	"fmt"

	"github.com/JakeFAU/topicbatch/internal/accumulator"
	"github.com/JakeFAU/topicbatch/internal/codec"
	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

// Sender is the producer-facing handle for one event type bound to a topic.
// Several senders, even of different types, may share a topic's accumulator.
type Sender[T any] struct {
	topic  string
	acc    *accumulator.Accumulator
	encode codec.Encoder[T]
}

// SenderFor returns a Sender bound to topic, creating the topic's accumulator
// on first use. Concurrent calls for an unseen topic create exactly one
// accumulator.
func SenderFor[T any](r *Registry, topic string, enc codec.Encoder[T]) (*Sender[T], error) {
	if enc == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	acc, err := r.accumulatorFor(topic)
	if err != nil {
		return nil, fmt.Errorf("sender for topic %q: %w", topic, err)
	}
	return &Sender[T]{topic: topic, acc: acc, encode: enc}, nil
}

// JSONSender is SenderFor with the JSON encoder.
func JSONSender[T any](r *Registry, topic string) (*Sender[T], error) {
	return SenderFor(r, topic, codec.JSON[T]())
}

// Topic returns the bound topic.
func (s *Sender[T]) Topic() string {
	return s.topic
}

// Send encodes event and hands it to the topic's accumulator, blocking while
// the accumulator's mailbox is full. A nil error means the event was accepted;
// delivery downstream happens asynchronously. Errors wrap
// pipeline.ErrSendFailed, or are a *pipeline.SerializationError when encoding
// fails. Send never retries.
func (s *Sender[T]) Send(ctx context.Context, event T) error {
	payload, err := s.encode(event)
	if err != nil {
		return &pipeline.SerializationError{Topic: s.topic, Err: err}
	}
	return s.acc.Enqueue(ctx, payload)
}
