package accumulator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topicbatch/internal/id/uuid"
	"github.com/JakeFAU/topicbatch/internal/mailbox"
	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

// Config controls batching for one topic.
//   - Size: flush as soon as this many messages are buffered (default 5).
//   - Timeout: flush a non-empty buffer this long after its first message (default 1s).
//   - MailboxCapacity: pending payloads before Enqueue blocks (default 5*Size).
//   - FlushTimeout: bound on handing the final batch downstream during shutdown (default 5s).
type Config struct {
	Size            int
	Timeout         time.Duration
	MailboxCapacity int
	FlushTimeout    time.Duration
}

const (
	defaultSize         = 5
	defaultTimeout      = time.Second
	defaultFlushTimeout = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = defaultSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MailboxCapacity <= 0 {
		c.MailboxCapacity = c.Size * 5
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = defaultFlushTimeout
	}
	return c
}

// Downstream accepts flushed batches. The sink satisfies it; Submit may block
// while the downstream mailbox is full.
type Downstream interface {
	Submit(ctx context.Context, batch pipeline.Batch) error
}

// IDGenerator produces batch identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock stamps enqueue and flush times.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Option customizes an Accumulator.
type Option func(*Accumulator)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Accumulator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(observer pipeline.Observer) Option {
	return func(a *Accumulator) {
		if observer != nil {
			a.observer = observer
		}
	}
}

// WithIDGenerator overrides the batch ID generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(a *Accumulator) {
		if gen != nil {
			a.ids = gen
		}
	}
}

// WithClock overrides the clock used for message and batch timestamps.
func WithClock(clock Clock) Option {
	return func(a *Accumulator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// Accumulator buffers messages for a single topic. Its buffer and timer are
// owned by the run goroutine; other goroutines interact only via the mailbox.
type Accumulator struct {
	topic      string
	cfg        Config
	downstream Downstream
	inbox      *mailbox.Mailbox[[]byte]
	logger     *zap.Logger
	observer   pipeline.Observer
	ids        IDGenerator
	clock      Clock

	state   atomic.Int32
	seq     atomic.Uint64
	flushed atomic.Uint64

	stopOnce sync.Once
	doneCh   chan struct{}
	stopErr  error
}

// New starts an Accumulator for topic that flushes into downstream. The
// returned Accumulator is immediately ready to accept payloads.
func New(topic string, downstream Downstream, cfg Config, opts ...Option) *Accumulator {
	cfg = cfg.withDefaults()
	a := &Accumulator{
		topic:      topic,
		cfg:        cfg,
		downstream: downstream,
		inbox:      mailbox.New[[]byte](cfg.MailboxCapacity),
		logger:     zap.NewNop(),
		observer:   pipeline.NopObserver{},
		ids:        uuid.New(),
		clock:      systemClock{},
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.logger = a.logger.With(zap.String("topic", topic))
	go a.run()
	return a
}

// Topic returns the topic this accumulator collects for.
func (a *Accumulator) Topic() string {
	return a.topic
}

// State reports the current lifecycle state.
func (a *Accumulator) State() State {
	return State(a.state.Load())
}

// Flushed returns the number of batches handed downstream so far.
func (a *Accumulator) Flushed() uint64 {
	return a.flushed.Load()
}

// Done is closed once the accumulator reaches StateStopped.
func (a *Accumulator) Done() <-chan struct{} {
	return a.doneCh
}

// Enqueue hands payload to the accumulator, blocking while its mailbox is
// full. A nil error means the payload was accepted, not that it was pushed.
// Once shutdown has begun every call fails with pipeline.ErrSendFailed.
func (a *Accumulator) Enqueue(ctx context.Context, payload []byte) error {
	if err := a.inbox.Send(ctx, payload); err != nil {
		a.observer.SendFailed(a.topic)
		return fmt.Errorf("%w: topic %q: %w", pipeline.ErrSendFailed, a.topic, err)
	}
	a.observer.MessageEnqueued(a.topic)
	return nil
}

// Shutdown stops accepting payloads, flushes whatever is buffered and waits
// until the accumulator is stopped or ctx ends. It returns an error wrapping
// pipeline.ErrShutdownIncomplete when the final batch could not be delivered
// or the wait was cut short. It is safe to call multiple times.
func (a *Accumulator) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.stopOnce.Do(func() {
		a.transition(StateStopping)
		// Close waits for in-flight senders, which need the run loop draining.
		go a.inbox.Close()
	})
	select {
	case <-a.doneCh:
		return a.stopErr
	case <-ctx.Done():
		return fmt.Errorf("%w: topic %q: %w", pipeline.ErrShutdownIncomplete, a.topic, ctx.Err())
	}
}

func (a *Accumulator) run() {
	defer close(a.doneCh)
	buffer := make([]pipeline.Message, 0, a.cfg.Size)
	timer := time.NewTimer(a.cfg.Timeout)
	timer.Stop()
	timerActive := false
	for {
		select {
		case payload, ok := <-a.inbox.Receive():
			if !ok {
				a.handleStop(buffer, timer, &timerActive)
				return
			}
			buffer = a.enqueueMessage(buffer, payload, timer, &timerActive)
		case <-timer.C:
			timerActive = false
			if len(buffer) == 0 {
				// A fire that raced a size flush finds nothing to send.
				a.logger.Debug("suppressed empty timeout flush")
				continue
			}
			a.flush(context.Background(), buffer, pipeline.FlushTimeout)
			buffer = make([]pipeline.Message, 0, a.cfg.Size)
		}
	}
}

func (a *Accumulator) enqueueMessage(
	buffer []pipeline.Message,
	payload []byte,
	timer *time.Timer,
	timerActive *bool,
) []pipeline.Message {
	buffer = append(buffer, pipeline.Message{Payload: payload, EnqueuedAt: a.clock.Now()})
	if !*timerActive {
		timer.Reset(a.cfg.Timeout)
		*timerActive = true
		a.transition(StateCollecting)
	}
	if len(buffer) >= a.cfg.Size {
		stopTimer(timer, timerActive)
		a.flush(context.Background(), buffer, pipeline.FlushSize)
		return make([]pipeline.Message, 0, a.cfg.Size)
	}
	return buffer
}

func (a *Accumulator) handleStop(buffer []pipeline.Message, timer *time.Timer, timerActive *bool) {
	stopTimer(timer, timerActive)
	if len(buffer) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.FlushTimeout)
		if err := a.flush(ctx, buffer, pipeline.FlushShutdown); err != nil {
			a.logger.Error("final batch lost during shutdown",
				zap.Int("lost_messages", len(buffer)),
				zap.Error(err),
			)
			a.stopErr = fmt.Errorf("%w: topic %q: %w", pipeline.ErrShutdownIncomplete, a.topic, err)
		}
		cancel()
	}
	a.state.Store(int32(StateStopped))
	a.logger.Info("accumulator stopped", zap.Uint64("batches", a.flushed.Load()))
}

// flush takes ownership of buffer and hands it downstream as one batch.
// Empty buffers are never forwarded.
func (a *Accumulator) flush(ctx context.Context, buffer []pipeline.Message, reason pipeline.FlushReason) error {
	if len(buffer) == 0 {
		return nil
	}
	a.transition(StateIdle)
	batch := pipeline.Batch{
		ID:        a.nextID(),
		Topic:     a.topic,
		Messages:  buffer,
		Reason:    reason,
		FlushedAt: a.clock.Now(),
	}
	a.observer.BatchFlushed(a.topic, batch.Len(), reason)
	if err := a.downstream.Submit(ctx, batch); err != nil {
		a.logger.Warn("batch hand-off failed",
			zap.String("batch_id", batch.ID),
			zap.Int("size", batch.Len()),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		return fmt.Errorf("submit batch %s: %w", batch.ID, err)
	}
	a.flushed.Add(1)
	a.logger.Debug("batch flushed",
		zap.String("batch_id", batch.ID),
		zap.Int("size", batch.Len()),
		zap.String("reason", string(reason)),
	)
	return nil
}

func (a *Accumulator) nextID() string {
	seq := a.seq.Add(1)
	id, err := a.ids.NewID()
	if err != nil {
		a.logger.Warn("batch id generation failed; using sequence", zap.Error(err))
		return fmt.Sprintf("%s-%d", a.topic, seq)
	}
	return id
}

// transition moves between Idle and Collecting, or into Stopping. It never
// leaves Stopping or Stopped.
func (a *Accumulator) transition(next State) {
	for {
		cur := State(a.state.Load())
		if cur == StateStopping || cur == StateStopped {
			return
		}
		if a.state.CompareAndSwap(int32(cur), int32(next)) {
			return
		}
	}
}

func stopTimer(timer *time.Timer, timerActive *bool) {
	if !*timerActive {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	*timerActive = false
}
