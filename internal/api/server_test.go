package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topicbatch/internal/accumulator"
	"github.com/JakeFAU/topicbatch/internal/metrics"
	"github.com/JakeFAU/topicbatch/internal/pusher/memory"
	"github.com/JakeFAU/topicbatch/internal/ratelimit"
	"github.com/JakeFAU/topicbatch/internal/registry"
)

type testEnv struct {
	server   *Server
	registry *registry.Registry
	pusher   *memory.Pusher
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	require.NoError(t, err)

	p := memory.New()
	r, err := registry.New(registry.Config{
		Accumulator: accumulator.Config{Size: 2, Timeout: time.Minute},
	}, p, registry.WithObserver(collector))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.ShutdownAll(context.Background()) })

	return &testEnv{
		server:   NewServer(r, append([]Option{WithMetrics(collector, metrics.Handler(reg))}, opts...)...),
		registry: r,
		pusher:   p,
	}
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_ReadyzTurnsUnavailableOnShutdown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz", nil).Code)

	require.NoError(t, env.registry.ShutdownAll(context.Background()))
	require.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/readyz", nil).Code)
}

func TestServer_PublishEvent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, body := range []string{`{"n":1}`, `{"n":2}`} {
		rec := env.do(http.MethodPost, "/v1/topics/orders/events", []byte(body))
		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Contains(t, rec.Body.String(), "accepted")
	}

	require.Eventually(t, func() bool {
		return len(env.pusher.ByTopic("orders")) == 1
	}, time.Second, 5*time.Millisecond)
	batch := env.pusher.ByTopic("orders")[0]
	require.Equal(t, [][]byte{[]byte(`{"n":1}`), []byte(`{"n":2}`)}, batch.Payloads())

	rec := env.do(http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats registry.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.EqualValues(t, 2, stats.Sink.Messages)
	require.EqualValues(t, 1, stats.Sink.Batches)
	require.Equal(t, "idle", stats.Topics["orders"])
}

func TestServer_PublishEventRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/v1/topics/orders/events", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "event body required")
	require.Empty(t, env.registry.Topics())
}

func TestServer_PublishEventTooLarge(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/v1/topics/orders/events", bytes.Repeat([]byte("x"), maxEventBytes+1))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServer_PublishEventAfterShutdown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/v1/topics/orders/events", []byte("a")).Code)
	require.NoError(t, env.registry.ShutdownAll(context.Background()))

	rec := env.do(http.MethodPost, "/v1/topics/orders/events", []byte("b"))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, 1, env.pusher.MessageCount())
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/v1/topics/orders/events", []byte("a")).Code)

	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `topicbatch_messages_enqueued_total{topic="orders"} 1`), body)
	require.Contains(t, body, `topicbatch_http_requests_total{code="202",method="POST"} 1`)
}

func TestServer_PublishEventRateLimited(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, WithRateLimiter(ratelimit.New(ratelimit.Config{RPS: 0.001, Burst: 1})))
	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/v1/topics/orders/events", []byte("a")).Code)

	rec := env.do(http.MethodPost, "/v1/topics/orders/events", []byte("b"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, rec.Body.String(), "rate limit exceeded")

	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/v1/topics/payments/events", []byte("c")).Code)

	body := env.do(http.MethodGet, "/metrics", nil).Body.String()
	require.Contains(t, body, `topicbatch_rate_limited_total{topic="orders"} 1`)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusBadRequest, statusFor(registry.ErrInvalidTopic))
	require.Equal(t, http.StatusServiceUnavailable, statusFor(registry.ErrRegistryClosed))
	require.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
}
