// Package pubsub implements a Pusher that publishes batches to Google Cloud
// Pub/Sub, one Pub/Sub message per batch message.
package pubsub

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/multierr"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

// Message attribute keys set on every published message.
const (
	AttrBatchID     = "batch_id"
	AttrBatchSeq    = "batch_seq"
	AttrFlushReason = "flush_reason"
)

// Config controls topic naming.
type Config struct {
	// TopicPrefix is prepended to the batch topic to form the Pub/Sub topic ID.
	TopicPrefix string
}

// Option customizes a Pusher.
type Option func(*Pusher)

// WithPropagator overrides the global OpenTelemetry propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(pu *Pusher) {
		if p != nil {
			pu.propagator = p
		}
	}
}

// Pusher publishes through a Pub/Sub client, caching one publisher per topic.
type Pusher struct {
	client     *pubsub.Client
	cfg        Config
	propagator propagation.TextMapPropagator
	ownsClient bool

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client *pubsub.Client, cfg Config, opts ...Option) (*Pusher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	p := &Pusher{
		client:     client,
		cfg:        cfg,
		propagator: otel.GetTextMapPropagator(),
		publishers: make(map[string]*pubsub.Publisher),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Dial creates a client for projectID and a Pusher that closes it on Close.
func Dial(ctx context.Context, projectID string, cfg Config, opts ...Option) (*Pusher, error) {
	if projectID == "" {
		return nil, fmt.Errorf("pubsub.project_id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p, err := New(client, cfg, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	p.ownsClient = true
	return p, nil
}

// TopicID returns the Pub/Sub topic ID a batch topic publishes to.
func (p *Pusher) TopicID(topic string) string {
	return p.cfg.TopicPrefix + topic
}

// Push publishes every message and waits for all results. Failures of
// individual messages are aggregated into the returned error.
func (p *Pusher) Push(ctx context.Context, batch pipeline.Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("validate batch: %w", err)
	}
	publisher := p.publisher(p.TopicID(batch.Topic))

	results := make([]*pubsub.PublishResult, batch.Len())
	for i, msg := range batch.Messages {
		m := &pubsub.Message{
			Data: msg.Payload,
			Attributes: map[string]string{
				AttrBatchID:     batch.ID,
				AttrBatchSeq:    strconv.Itoa(i),
				AttrFlushReason: string(batch.Reason),
			},
		}
		p.propagator.Inject(ctx, &pubsubCarrier{attrs: m.Attributes})
		results[i] = publisher.Publish(ctx, m)
	}

	var errs error
	for i, res := range results {
		if _, err := res.Get(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("message %d: %w", i, err))
		}
	}
	if errs != nil {
		return fmt.Errorf("publish batch %s to %s: %w", batch.ID, p.TopicID(batch.Topic), errs)
	}
	return nil
}

func (p *Pusher) publisher(topicID string) *pubsub.Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pub, ok := p.publishers[topicID]; ok {
		return pub
	}
	pub := p.client.Publisher(topicID)
	p.publishers[topicID] = pub
	return pub
}

// Close flushes and stops every publisher, then closes the client if the
// Pusher created it.
func (p *Pusher) Close(context.Context) error {
	p.mu.Lock()
	for id, pub := range p.publishers {
		pub.Stop()
		delete(p.publishers, id)
	}
	p.mu.Unlock()
	if p.ownsClient {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
