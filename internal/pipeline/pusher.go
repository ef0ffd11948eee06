package pipeline

import (
	"context"
	"time"
)

// Pusher delivers completed batches to a downstream transport. The sink calls
// Push sequentially, one batch at a time; implementations must honor ctx
// deadlines and must not retain the batch's payload slices after returning.
type Pusher interface {
	Push(ctx context.Context, batch Batch) error
	Close(ctx context.Context) error
}

// Observer receives lifecycle notifications from accumulators and the sink.
// Implementations must be safe for concurrent use.
type Observer interface {
	MessageEnqueued(topic string)
	SendFailed(topic string)
	BatchFlushed(topic string, size int, reason FlushReason)
	BatchPushed(topic string, size int, dur time.Duration, err error)
}

// NopObserver discards every notification.
type NopObserver struct{}

// MessageEnqueued implements Observer.
func (NopObserver) MessageEnqueued(string) {}

// SendFailed implements Observer.
func (NopObserver) SendFailed(string) {}

// BatchFlushed implements Observer.
func (NopObserver) BatchFlushed(string, int, FlushReason) {}

// BatchPushed implements Observer.
func (NopObserver) BatchPushed(string, int, time.Duration, error) {}
