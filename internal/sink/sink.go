// Package sink implements the shared downstream endpoint of the pipeline. A
// Sink owns one goroutine that takes batches from its bounded mailbox and
// pushes them, one at a time, through a pipeline.Pusher. Because pushes are
// sequential a slow transport backs up every topic.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/topicbatch/internal/mailbox"
	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

var tracer = otel.Tracer("github.com/JakeFAU/topicbatch/internal/sink")

// ErrClosed is returned by Submit after Shutdown has begun.
var ErrClosed = errors.New("sink closed")

// Config controls the sink mailbox and push deadlines.
//   - MailboxCapacity: batches queued before Submit blocks (default 10).
//   - PushTimeout: per-batch deadline passed to the Pusher (default 10s).
type Config struct {
	MailboxCapacity int
	PushTimeout     time.Duration
}

const (
	defaultMailboxCapacity = 10
	defaultPushTimeout     = 10 * time.Second
)

// Stats is a point-in-time snapshot of the sink counters.
type Stats struct {
	// Messages counts every message received in a batch, pushed or not.
	Messages uint64 `json:"messages"`
	// Batches counts batches taken from the mailbox.
	Batches uint64 `json:"batches"`
	// Failed counts batches whose push returned an error.
	Failed uint64 `json:"failed"`
}

// Option customizes a Sink.
type Option func(*Sink)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(observer pipeline.Observer) Option {
	return func(s *Sink) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// Sink pushes batches from any topic sequentially.
type Sink struct {
	pusher   pipeline.Pusher
	cfg      Config
	inbox    *mailbox.Mailbox[pipeline.Batch]
	logger   *zap.Logger
	observer pipeline.Observer

	messages atomic.Uint64
	batches  atomic.Uint64
	failed   atomic.Uint64

	stopOnce sync.Once
	doneCh   chan struct{}
	closeErr error
}

// New starts a Sink that delivers through pusher.
func New(pusher pipeline.Pusher, cfg Config, opts ...Option) (*Sink, error) {
	if pusher == nil {
		return nil, fmt.Errorf("pusher is required")
	}
	if cfg.MailboxCapacity <= 0 {
		cfg.MailboxCapacity = defaultMailboxCapacity
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = defaultPushTimeout
	}
	s := &Sink{
		pusher:   pusher,
		cfg:      cfg,
		inbox:    mailbox.New[pipeline.Batch](cfg.MailboxCapacity),
		logger:   zap.NewNop(),
		observer: pipeline.NopObserver{},
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	go s.run()
	return s, nil
}

// Submit queues batch for pushing, blocking while the mailbox is full. Empty
// batches are dropped without error.
func (s *Sink) Submit(ctx context.Context, batch pipeline.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := s.inbox.Send(ctx, batch); err != nil {
		if errors.Is(err, mailbox.ErrClosed) {
			return fmt.Errorf("submit batch %s: %w", batch.ID, ErrClosed)
		}
		return fmt.Errorf("submit batch %s: %w", batch.ID, err)
	}
	return nil
}

// Stats returns the current counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Messages: s.messages.Load(),
		Batches:  s.batches.Load(),
		Failed:   s.failed.Load(),
	}
}

// Pending returns the number of batches waiting in the mailbox.
func (s *Sink) Pending() int {
	return s.inbox.Len()
}

// Shutdown stops accepting batches, pushes everything already queued, closes
// the pusher and waits for the loop to exit or ctx to end. It is safe to call
// multiple times.
func (s *Sink) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.stopOnce.Do(func() {
		go s.inbox.Close()
	})
	select {
	case <-s.doneCh:
		return s.closeErr
	case <-ctx.Done():
		return fmt.Errorf("sink shutdown wait: %w", ctx.Err())
	}
}

func (s *Sink) run() {
	defer close(s.doneCh)
	for batch := range s.inbox.Receive() {
		s.push(batch)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PushTimeout)
	defer cancel()
	if err := s.pusher.Close(ctx); err != nil {
		s.logger.Warn("pusher close failed", zap.Error(err))
		s.closeErr = fmt.Errorf("close pusher: %w", err)
	}
	stats := s.Stats()
	s.logger.Info("sink stopped",
		zap.Uint64("messages", stats.Messages),
		zap.Uint64("batches", stats.Batches),
		zap.Uint64("failed", stats.Failed),
	)
}

func (s *Sink) push(batch pipeline.Batch) {
	total := s.messages.Add(uint64(batch.Len()))
	s.batches.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PushTimeout)
	ctx, span := tracer.Start(ctx, "sink.push", trace.WithAttributes(
		attribute.String("topic", batch.Topic),
		attribute.String("batch_id", batch.ID),
		attribute.Int("size", batch.Len()),
	))
	start := time.Now()
	err := s.pusher.Push(ctx, batch)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "push failed")
	}
	span.End()
	cancel()

	s.observer.BatchPushed(batch.Topic, batch.Len(), dur, err)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("batch push failed",
			zap.String("topic", batch.Topic),
			zap.String("batch_id", batch.ID),
			zap.Int("size", batch.Len()),
			zap.Error(fmt.Errorf("%w: %w", pipeline.ErrPushFailed, err)),
		)
		return
	}
	s.logger.Info("batch pushed",
		zap.String("topic", batch.Topic),
		zap.String("batch_id", batch.ID),
		zap.Int("size", batch.Len()),
		zap.Uint64("total_messages", total),
		zap.Duration("dur", dur),
	)
}
