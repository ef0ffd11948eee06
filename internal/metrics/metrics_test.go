package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

func TestCollectorObservesPipeline(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.MessageEnqueued("orders")
	c.MessageEnqueued("orders")
	c.SendFailed("orders")
	c.BatchFlushed("orders", 2, pipeline.FlushSize)
	c.BatchFlushed("orders", 1, pipeline.FlushTimeout)
	c.BatchPushed("orders", 2, 10*time.Millisecond, nil)
	c.BatchPushed("orders", 1, 20*time.Millisecond, errors.New("down"))

	require.InDelta(t, 2, testutil.ToFloat64(c.messagesEnqueued.WithLabelValues("orders")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(c.sendFailures.WithLabelValues("orders")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(c.batchesFlushed.WithLabelValues("orders", "size")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(c.batchesFlushed.WithLabelValues("orders", "timeout")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(c.batchesPushed.WithLabelValues("orders", "success")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(c.batchesPushed.WithLabelValues("orders", "failure")), 0)
	require.Equal(t, 1, testutil.CollectAndCount(c.batchSize))
	require.Equal(t, 1, testutil.CollectAndCount(c.pushDuration))

	expected := `
# HELP topicbatch_messages_enqueued_total Messages accepted into an accumulator mailbox, labeled by topic.
# TYPE topicbatch_messages_enqueued_total counter
topicbatch_messages_enqueued_total{topic="orders"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "topicbatch_messages_enqueued_total"))
}

func TestCollectorObservesRateLimiting(t *testing.T) {
	t.Parallel()

	c, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	c.RateLimited("orders")
	c.ObserveRateLimitDelay("orders", 30*time.Millisecond)

	require.InDelta(t, 1, testutil.ToFloat64(c.rateLimited.WithLabelValues("orders")), 0)
	require.Equal(t, 1, testutil.CollectAndCount(c.rateLimitDelay))
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	var already prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &already)
}

func TestMiddlewareAndHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/notfound", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", Handler(reg))

	ts := httptest.NewServer(r)
	defer ts.Close()

	for _, path := range []string{"/test", "/notfound"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	require.InDelta(t, 1, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "200")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "404")), 0)
	require.Positive(t, testutil.CollectAndCount(c.httpRequestDuration))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `topicbatch_http_requests_total{code="200",method="GET"} 1`)
}
