// Package server assembles the pipeline from configuration and runs it until
// interrupted: pushers, the topic registry, metrics, the HTTP admin surface
// and the optional demo producer.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/topicbatch/internal/accumulator"
	"github.com/JakeFAU/topicbatch/internal/api"
	"github.com/JakeFAU/topicbatch/internal/config"
	"github.com/JakeFAU/topicbatch/internal/logging"
	"github.com/JakeFAU/topicbatch/internal/metrics"
	"github.com/JakeFAU/topicbatch/internal/pusher/memory"
	"github.com/JakeFAU/topicbatch/internal/ratelimit"
	"github.com/JakeFAU/topicbatch/internal/registry"
	"github.com/JakeFAU/topicbatch/internal/sink"
	"github.com/JakeFAU/topicbatch/internal/telemetry"
)

// Option customizes Build.
type Option func(*App)

// WithLogger replaces the logger Build would create from configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *registry.Registry
	apiServer *api.Server
	promReg   *prometheus.Registry
	memory    *memory.Pusher
	closers   []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	app := &App{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if app.logger == nil {
		logger, err := logging.New(logging.Config{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.logger = logger
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry init failed: %w", err)
		}
		app.addCloser("tracer", shutdown)
		app.logger.Info("tracing enabled", zap.Float64("sample_ratio", cfg.Telemetry.SampleRatio))
	}

	app.promReg = prometheus.NewRegistry()
	app.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New(app.promReg)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	pusher, err := app.buildPusher(ctx)
	if err != nil {
		_ = app.closeInfrastructure(ctx)
		return nil, err
	}

	app.registry, err = registry.New(registry.Config{
		Accumulator: accumulator.Config{
			Size:            cfg.Batch.Size,
			Timeout:         cfg.Batch.Timeout,
			MailboxCapacity: cfg.Batch.MailboxCapacity,
			FlushTimeout:    cfg.Shutdown.FlushTimeout,
		},
		Sink: sink.Config{
			MailboxCapacity: cfg.Sink.MailboxCapacity,
			PushTimeout:     cfg.Sink.PushTimeout,
		},
	}, pusher,
		registry.WithLogger(app.logger),
		registry.WithObserver(collector),
	)
	if err != nil {
		_ = pusher.Close(ctx)
		_ = app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("registry init failed: %w", err)
	}

	apiOpts := []api.Option{
		api.WithLogger(app.logger.Named("api")),
		api.WithMetrics(collector, metrics.Handler(app.promReg)),
	}
	if cfg.Server.RateLimitRPS > 0 {
		apiOpts = append(apiOpts, api.WithRateLimiter(ratelimit.New(ratelimit.Config{
			RPS:   cfg.Server.RateLimitRPS,
			Burst: cfg.Server.RateLimitBurst,
		})))
		app.logger.Info("ingress rate limit enabled",
			zap.Float64("rps", cfg.Server.RateLimitRPS),
			zap.Int("burst", cfg.Server.RateLimitBurst),
		)
	}
	app.apiServer = api.NewServer(app.registry, apiOpts...)
	app.logger.Info("pipeline built",
		zap.Int("batch_size", cfg.Batch.Size),
		zap.Duration("batch_timeout", cfg.Batch.Timeout),
		zap.Int("batch_mailbox_capacity", cfg.Batch.MailboxCapacity),
		zap.Int("sink_mailbox_capacity", cfg.Sink.MailboxCapacity),
		zap.Strings("pushers", cfg.Sink.Pushers),
	)
	return app, nil
}

// Registry returns the topic registry.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Handler returns the HTTP admin handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and demo producer, blocks until ctx is canceled
// or SIGINT/SIGTERM arrives, then drains the pipeline.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if a.cfg.Server.Enabled {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	// The producer outlives the signal: it stops once its sends are rejected.
	producerCtx, cancelProducer := context.WithCancel(context.Background())
	defer cancelProducer()
	producerDone := make(chan struct{})
	if a.cfg.Demo.Enabled {
		sender, err := registry.JSONSender[DemoEvent](a.registry, a.cfg.Demo.Topic)
		if err != nil {
			return fmt.Errorf("demo sender: %w", err)
		}
		producer := newProducer(sender, a.cfg.Demo, a.logger.Named("demo"))
		go func() {
			defer close(producerDone)
			producer.Run(producerCtx)
		}()
	} else {
		close(producerDone)
	}

	a.logger.Info("waiting for interrupt")
	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs error
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if err := a.registry.ShutdownAll(shutdownCtx); err != nil {
		errs = multierr.Append(errs, err)
	}
	a.logger.Info("gracefully stopped")

	cancelProducer()
	<-producerDone
	return multierr.Append(errs, a.Close(shutdownCtx))
}

// Close releases infrastructure the pushers do not own.
func (a *App) Close(ctx context.Context) error {
	err := a.closeInfrastructure(ctx)
	_ = a.logger.Sync()
	return err
}

func (a *App) addCloser(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) closeInfrastructure(ctx context.Context) error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errs
}
