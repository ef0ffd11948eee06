// Package memory contains an in-memory pusher for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

// Pusher stores pushed batches for inspection.
type Pusher struct {
	mu      sync.RWMutex
	batches []pipeline.Batch
	closed  bool
}

// New returns a memory Pusher.
func New() *Pusher {
	return &Pusher{}
}

// Push records a copy of the batch.
func (p *Pusher) Push(_ context.Context, batch pipeline.Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := batch
	cp.Messages = append([]pipeline.Message(nil), batch.Messages...)
	p.batches = append(p.batches, cp)
	return nil
}

// Close marks the pusher closed.
func (p *Pusher) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Batches returns the recorded batches.
func (p *Pusher) Batches() []pipeline.Batch {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]pipeline.Batch, len(p.batches))
	copy(out, p.batches)
	return out
}

// ByTopic returns the recorded batches for one topic in push order.
func (p *Pusher) ByTopic(topic string) []pipeline.Batch {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []pipeline.Batch
	for _, b := range p.batches {
		if b.Topic == topic {
			out = append(out, b)
		}
	}
	return out
}

// MessageCount returns the total number of recorded messages.
func (p *Pusher) MessageCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0
	for _, b := range p.batches {
		total += b.Len()
	}
	return total
}

// Closed reports whether Close was called.
func (p *Pusher) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
