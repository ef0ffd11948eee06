package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/topicbatch/internal/codec"
	"github.com/JakeFAU/topicbatch/internal/metrics"
	"github.com/JakeFAU/topicbatch/internal/pipeline"
	"github.com/JakeFAU/topicbatch/internal/ratelimit"
	"github.com/JakeFAU/topicbatch/internal/registry"
)

const (
	maxEventBytes = 1 << 20
	sendTimeout   = 5 * time.Second
)

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request metrics through c and serves handler at /metrics.
func WithMetrics(c *metrics.Collector, handler http.Handler) Option {
	return func(s *Server) {
		s.collector = c
		if handler != nil {
			s.metricsHandler = handler
		}
	}
}

// WithRateLimiter throttles published events per topic.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// Server wires HTTP handlers to the registry.
type Server struct {
	router         chi.Router
	registry       *registry.Registry
	logger         *zap.Logger
	collector      *metrics.Collector
	metricsHandler http.Handler
	limiter        *ratelimit.Limiter
}

// NewServer constructs a Server with middleware and routes.
func NewServer(reg *registry.Registry, opts ...Option) *Server {
	s := &Server{
		registry:       reg,
		logger:         zap.NewNop(),
		metricsHandler: metrics.Handler(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	if s.collector != nil {
		r.Use(s.collector.Middleware)
	}
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", s.metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Post("/topics/{topic}/events", s.publishEvent)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.registry.Closed() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Stats())
}

func (s *Server) publishEvent(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "event too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if len(body) == 0 {
		s.writeError(w, http.StatusBadRequest, "event body required")
		return
	}

	sender, err := registry.SenderFor(s.registry, topic, codec.Raw())
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), sendTimeout)
	defer cancel()
	if !s.admit(ctx, topic) {
		s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	if err := sender.Send(ctx, body); err != nil {
		s.logger.Warn("event rejected", zap.String("topic", topic), zap.Error(err))
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"topic": topic, "status": "accepted"})
}

// admit waits for a rate limit token for topic. It reports false when the
// token would not arrive before ctx ends.
func (s *Server) admit(ctx context.Context, topic string) bool {
	if s.limiter == nil || !s.limiter.Enabled() {
		return true
	}
	start := time.Now()
	if err := s.limiter.Wait(ctx, topic); err != nil {
		s.logger.Warn("event rate limited", zap.String("topic", topic), zap.Error(err))
		if s.collector != nil {
			s.collector.RateLimited(topic)
		}
		return false
	}
	if waited := time.Since(start); waited > time.Millisecond && s.collector != nil {
		s.collector.ObserveRateLimitDelay(topic, waited)
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrInvalidTopic):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrRegistryClosed), errors.Is(err, pipeline.ErrSendFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("dur", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
