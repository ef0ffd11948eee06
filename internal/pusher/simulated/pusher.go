// Package simulated provides a Pusher that stands in for a slow downstream
// service by sleeping before acknowledging each batch.
package simulated

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

// Config controls the simulated round trip.
//   - Latency: base delay per push.
//   - Jitter: an extra uniformly random delay in [0, Jitter).
type Config struct {
	Latency time.Duration
	Jitter  time.Duration
}

// Pusher sleeps for the configured latency and then reports success. A push
// whose context ends first fails with the context error.
type Pusher struct {
	cfg    Config
	logger *zap.Logger
	pushed atomic.Uint64
}

// New returns a simulated Pusher. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pusher{cfg: cfg, logger: logger}
}

// Push waits out the simulated latency.
func (p *Pusher) Push(ctx context.Context, batch pipeline.Batch) error {
	delay := p.delay()
	p.logger.Debug("simulating push",
		zap.String("topic", batch.Topic),
		zap.String("batch_id", batch.ID),
		zap.Int("size", batch.Len()),
		zap.Duration("delay", delay),
	)
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("simulated push of batch %s: %w", batch.ID, ctx.Err())
		}
	}
	p.pushed.Add(uint64(batch.Len()))
	return nil
}

// Pushed returns the number of messages acknowledged so far.
func (p *Pusher) Pushed() uint64 {
	return p.pushed.Load()
}

// Close is a no-op.
func (p *Pusher) Close(context.Context) error {
	return nil
}

func (p *Pusher) delay() time.Duration {
	d := p.cfg.Latency
	if p.cfg.Jitter > 0 {
		d += rand.N(p.cfg.Jitter)
	}
	return d
}
