// Package log implements a Pusher that writes batches to a structured logger.
// It is useful during development or when no durable downstream is configured.
package log

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

// Pusher logs one entry per batch and, optionally, one per message.
type Pusher struct {
	logger   *zap.Logger
	messages bool
}

// Option customizes a Pusher.
type Option func(*Pusher)

// WithMessages logs every payload at debug level in addition to the batch line.
func WithMessages() Option {
	return func(p *Pusher) {
		p.messages = true
	}
}

// New wires a Zap logger to the Pusher interface.
func New(logger *zap.Logger, opts ...Option) *Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pusher{logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push logs the batch using structured fields.
func (p *Pusher) Push(_ context.Context, batch pipeline.Batch) error {
	p.logger.Info("batch received",
		zap.String("topic", batch.Topic),
		zap.String("batch_id", batch.ID),
		zap.Int("size", batch.Len()),
		zap.String("reason", string(batch.Reason)),
		zap.Time("flushed_at", batch.FlushedAt),
	)
	if !p.messages || !p.logger.Core().Enabled(zapcore.DebugLevel) {
		return nil
	}
	for i, msg := range batch.Messages {
		p.logger.Debug("batch message",
			zap.String("batch_id", batch.ID),
			zap.Int("seq", i),
			zap.ByteString("payload", msg.Payload),
			zap.Duration("waited", batch.FlushedAt.Sub(msg.EnqueuedAt)),
		)
	}
	return nil
}

// Close syncs the logger.
func (p *Pusher) Close(context.Context) error {
	_ = p.logger.Sync()
	return nil
}
