// Package metrics exposes Prometheus collectors for the batching pipeline and
// its HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

const namespace = "topicbatch"

// Collector implements pipeline.Observer by updating Prometheus collectors.
type Collector struct {
	messagesEnqueued *prometheus.CounterVec
	sendFailures     *prometheus.CounterVec
	batchesFlushed   *prometheus.CounterVec
	batchSize        *prometheus.HistogramVec
	batchesPushed    *prometheus.CounterVec
	pushDuration     *prometheus.HistogramVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec
	rateLimitDelay      *prometheus.HistogramVec
}

var _ pipeline.Observer = (*Collector)(nil)

// New registers the collectors against reg. Registering twice against the
// same registry fails with prometheus.AlreadyRegisteredError.
func New(reg prometheus.Registerer) (c *Collector, err error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	defer func() {
		// promauto panics on duplicate registration.
		if r := recover(); r != nil {
			regErr, ok := r.(error)
			if !ok {
				panic(r)
			}
			c, err = nil, regErr
		}
	}()
	factory := promauto.With(reg)
	return &Collector{
		messagesEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_enqueued_total",
			Help:      "Messages accepted into an accumulator mailbox, labeled by topic.",
		}, []string{"topic"}),
		sendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Sends rejected because the accumulator was closed or the caller gave up.",
		}, []string{"topic"}),
		batchesFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_flushed_total",
			Help:      "Batches flushed by accumulators, labeled by topic and flush reason.",
		}, []string{"topic", "reason"}),
		batchSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size_messages",
			Help:      "Messages per flushed batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"topic"}),
		batchesPushed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_pushed_total",
			Help:      "Batches pushed downstream by the sink, labeled by topic and result.",
		}, []string{"topic", "result"}),
		pushDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_duration_seconds",
			Help:      "Downstream push latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"topic"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, labeled by method and code.",
		}, []string{"method", "code"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies, labeled by method and route.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "route"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Published events rejected by the per-topic rate limiter.",
		}, []string{"topic"}),
		rateLimitDelay: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_delay_seconds",
			Help:      "Time published events waited for a rate limit token.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"topic"}),
	}, nil
}

// Handler exposes the gathered metrics. A nil gatherer uses the default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// MessageEnqueued implements pipeline.Observer.
func (c *Collector) MessageEnqueued(topic string) {
	c.messagesEnqueued.WithLabelValues(topic).Inc()
}

// SendFailed implements pipeline.Observer.
func (c *Collector) SendFailed(topic string) {
	c.sendFailures.WithLabelValues(topic).Inc()
}

// BatchFlushed implements pipeline.Observer.
func (c *Collector) BatchFlushed(topic string, size int, reason pipeline.FlushReason) {
	c.batchesFlushed.WithLabelValues(topic, string(reason)).Inc()
	c.batchSize.WithLabelValues(topic).Observe(float64(size))
}

// BatchPushed implements pipeline.Observer.
func (c *Collector) BatchPushed(topic string, _ int, dur time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.batchesPushed.WithLabelValues(topic, result).Inc()
	c.pushDuration.WithLabelValues(topic).Observe(dur.Seconds())
}

// ObserveHTTPRequest records one served request.
func (c *Collector) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RateLimited records an event rejected by the ingress rate limiter.
func (c *Collector) RateLimited(topic string) {
	c.rateLimited.WithLabelValues(topic).Inc()
}

// ObserveRateLimitDelay records how long an event waited for a token.
func (c *Collector) ObserveRateLimitDelay(topic string, d time.Duration) {
	c.rateLimitDelay.WithLabelValues(topic).Observe(d.Seconds())
}
