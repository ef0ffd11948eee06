// Package ratelimit implements per-topic token buckets for ingress throttling.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
//   - RPS: sustained events per second per topic. Zero or less disables limiting.
//   - Burst: events a topic may send at once (default 1).
type Config struct {
	RPS   float64
	Burst int
}

// Limiter manages one token bucket per topic, created on first use.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Enabled reports whether the limiter throttles at all.
func (l *Limiter) Enabled() bool {
	return l.limit != rate.Inf
}

// Wait blocks until topic has a token or ctx ends. It fails immediately when
// the wait would outlast the ctx deadline.
func (l *Limiter) Wait(ctx context.Context, topic string) error {
	if err := l.bucket(topic).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Allow takes a token for topic without blocking.
func (l *Limiter) Allow(topic string) bool {
	return l.bucket(topic).Allow()
}

// Topics returns the number of topics with a bucket.
func (l *Limiter) Topics() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) bucket(topic string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[topic]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[topic] = limiter
	}
	return limiter
}
