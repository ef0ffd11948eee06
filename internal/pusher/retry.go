package pusher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

// RetryConfig controls the backoff applied to failed pushes.
//   - MaxTries: total attempts including the first (default 3).
//   - InitialInterval: first wait (default 250ms).
//   - MaxInterval: cap on a single wait (default 5s).
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxTries == 0 {
		c.MaxTries = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 250 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	return c
}

// Retry re-attempts failed pushes with jittered exponential backoff. Context
// errors and invalid batches are not retried.
type Retry struct {
	next   pipeline.Pusher
	cfg    RetryConfig
	logger *zap.Logger
}

// NewRetry wraps next.
func NewRetry(next pipeline.Pusher, cfg RetryConfig, logger *zap.Logger) *Retry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retry{next: next, cfg: cfg.withDefaults(), logger: logger}
}

// Push delegates to the wrapped pusher until it succeeds, the attempts run
// out, or ctx ends.
func (r *Retry) Push(ctx context.Context, batch pipeline.Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("validate batch: %w", err)
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.InitialInterval
	policy.MaxInterval = r.cfg.MaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := r.next.Push(ctx, batch)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(r.cfg.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Warn("push failed; retrying",
				zap.String("topic", batch.Topic),
				zap.String("batch_id", batch.ID),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("push batch %s after %d attempts: %w", batch.ID, attempt, err)
	}
	return nil
}

// Close closes the wrapped pusher.
func (r *Retry) Close(ctx context.Context) error {
	return r.next.Close(ctx)
}
