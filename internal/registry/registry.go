package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/topicbatch/internal/accumulator"
	"github.com/JakeFAU/topicbatch/internal/pipeline"
	"github.com/JakeFAU/topicbatch/internal/sink"
)

var (
	// ErrInvalidTopic is returned for empty topic names.
	ErrInvalidTopic = errors.New("topic is required")
	// ErrRegistryClosed is returned once ShutdownAll has begun.
	ErrRegistryClosed = errors.New("registry is shut down")
)

// Config bundles the accumulator and sink settings shared by every topic.
type Config struct {
	Accumulator accumulator.Config
	Sink        sink.Config
}

// Stats summarizes the pipeline for operators.
type Stats struct {
	Sink   sink.Stats        `json:"sink"`
	Topics map[string]string `json:"topics"`
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the parent logger; units log through named children.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver sets the observer shared by accumulators and the sink.
func WithObserver(observer pipeline.Observer) Option {
	return func(r *Registry) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// WithIDGenerator overrides batch ID generation for every accumulator.
func WithIDGenerator(gen accumulator.IDGenerator) Option {
	return func(r *Registry) {
		r.ids = gen
	}
}

// WithClock overrides the timestamp source for every accumulator.
func WithClock(clock accumulator.Clock) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// Registry owns the topic table and the sink. The table is written only on
// the creation path under the write lock; lookups share the read lock.
type Registry struct {
	cfg      Config
	sink     *sink.Sink
	logger   *zap.Logger
	observer pipeline.Observer
	ids      accumulator.IDGenerator
	clock    accumulator.Clock

	mu           sync.RWMutex
	accumulators map[string]*accumulator.Accumulator
	closed       bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Registry and starts its sink on top of pusher.
func New(cfg Config, pusher pipeline.Pusher, opts ...Option) (*Registry, error) {
	r := &Registry{
		cfg:          cfg,
		logger:       zap.NewNop(),
		observer:     pipeline.NopObserver{},
		accumulators: make(map[string]*accumulator.Accumulator),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	s, err := sink.New(pusher, cfg.Sink,
		sink.WithLogger(r.logger.Named("sink")),
		sink.WithObserver(r.observer),
	)
	if err != nil {
		return nil, fmt.Errorf("start sink: %w", err)
	}
	r.sink = s
	return r, nil
}

func (r *Registry) accumulatorFor(topic string) (*accumulator.Accumulator, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, ErrInvalidTopic
	}
	r.mu.RLock()
	acc, ok := r.accumulators[topic]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRegistryClosed
	}
	if ok {
		return acc, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	// Another caller may have created it between the two locks.
	if acc, ok := r.accumulators[topic]; ok {
		return acc, nil
	}
	opts := []accumulator.Option{
		accumulator.WithLogger(r.logger.Named("accumulator")),
		accumulator.WithObserver(r.observer),
	}
	if r.clock != nil {
		opts = append(opts, accumulator.WithClock(r.clock))
	}
	if r.ids != nil {
		opts = append(opts, accumulator.WithIDGenerator(r.ids))
	}
	acc = accumulator.New(topic, r.sink, r.cfg.Accumulator, opts...)
	r.accumulators[topic] = acc
	r.logger.Info("accumulator created", zap.String("topic", topic))
	return acc, nil
}

// Topics returns the registered topics in lexical order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.accumulators))
	for topic := range r.accumulators {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// State returns the lifecycle state of a topic's accumulator.
func (r *Registry) State(topic string) (accumulator.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accumulators[topic]
	if !ok {
		return accumulator.StateIdle, false
	}
	return acc.State(), true
}

// Stats returns the sink counters and every topic's state.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make(map[string]string, len(r.accumulators))
	for topic, acc := range r.accumulators {
		topics[topic] = acc.State().String()
	}
	return Stats{Sink: r.sink.Stats(), Topics: topics}
}

// Closed reports whether ShutdownAll has begun.
func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// ShutdownAll drains every accumulator concurrently, waits for all of them,
// and only then stops the sink. Incomplete accumulator shutdowns are logged
// and returned together but never prevent the sink from stopping. Subsequent
// calls return the first call's result.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.shutdownOnce.Do(func() {
		r.shutdownErr = r.shutdownAll(ctx)
	})
	return r.shutdownErr
}

func (r *Registry) shutdownAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	accs := make([]*accumulator.Accumulator, 0, len(r.accumulators))
	for _, acc := range r.accumulators {
		accs = append(accs, acc)
	}
	r.mu.Unlock()

	r.logger.Info("shutting down accumulators", zap.Int("topics", len(accs)))
	var (
		errMu sync.Mutex
		errs  error
		wg    conc.WaitGroup
	)
	for _, acc := range accs {
		wg.Go(func() {
			if err := acc.Shutdown(ctx); err != nil {
				r.logger.Error("accumulator shutdown incomplete",
					zap.String("topic", acc.Topic()),
					zap.Error(err),
				)
				errMu.Lock()
				errs = multierr.Append(errs, err)
				errMu.Unlock()
			}
		})
	}
	wg.Wait()

	if err := r.sink.Shutdown(ctx); err != nil {
		r.logger.Error("sink shutdown failed", zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("shutdown sink: %w", err))
	}
	stats := r.sink.Stats()
	r.logger.Info("pipeline stopped",
		zap.Uint64("messages", stats.Messages),
		zap.Uint64("batches", stats.Batches),
		zap.Uint64("failed", stats.Failed),
	)
	return errs
}
