package server

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/topicbatch/internal/config"
	"github.com/JakeFAU/topicbatch/internal/pipeline"
	"github.com/JakeFAU/topicbatch/internal/pusher"
	"github.com/JakeFAU/topicbatch/internal/pusher/archive"
	logpusher "github.com/JakeFAU/topicbatch/internal/pusher/log"
	"github.com/JakeFAU/topicbatch/internal/pusher/memory"
	"github.com/JakeFAU/topicbatch/internal/pusher/postgres"
	pubsubpusher "github.com/JakeFAU/topicbatch/internal/pusher/pubsub"
	"github.com/JakeFAU/topicbatch/internal/pusher/simulated"
	blobstore "github.com/JakeFAU/topicbatch/internal/storage"
	"github.com/JakeFAU/topicbatch/internal/storage/gcs"
	"github.com/JakeFAU/topicbatch/internal/storage/local"
	memstore "github.com/JakeFAU/topicbatch/internal/storage/memory"
)

// buildPusher assembles the configured downstream pushers into the single
// Pusher the sink drives. Several pushers fan out through pusher.Multi and
// retries wrap the result when sink.retry.max_tries exceeds one.
func (a *App) buildPusher(ctx context.Context) (pipeline.Pusher, error) {
	cfg := a.cfg
	var built []pipeline.Pusher
	fail := func(err error) (pipeline.Pusher, error) {
		for _, p := range built {
			err = multierr.Append(err, p.Close(ctx))
		}
		return nil, err
	}

	for _, name := range cfg.Sink.Pushers {
		p, err := a.newPusher(ctx, name)
		if err != nil {
			return fail(fmt.Errorf("pusher %s: %w", name, err))
		}
		a.logger.Info("pusher enabled", zap.String("pusher", name))
		built = append(built, p)
	}
	if len(built) == 0 {
		return nil, fmt.Errorf("no pushers configured")
	}

	var out pipeline.Pusher = built[0]
	if len(built) > 1 {
		out = pusher.NewMulti(built...)
	}
	if cfg.Sink.Retry.MaxTries > 1 {
		out = pusher.NewRetry(out, pusher.RetryConfig{
			MaxTries:        cfg.Sink.Retry.MaxTries,
			InitialInterval: cfg.Sink.Retry.InitialInterval,
			MaxInterval:     cfg.Sink.Retry.MaxInterval,
		}, a.logger.Named("retry"))
	}
	return out, nil
}

func (a *App) newPusher(ctx context.Context, name string) (pipeline.Pusher, error) {
	cfg := a.cfg
	switch name {
	case config.PusherSimulated:
		return simulated.New(simulated.Config{
			Latency: cfg.Sink.Simulated.Latency,
			Jitter:  cfg.Sink.Simulated.Jitter,
		}, a.logger.Named("simulated")), nil
	case config.PusherLog:
		return logpusher.New(a.logger.Named("batches")), nil
	case config.PusherMemory:
		a.memory = memory.New()
		return a.memory, nil
	case config.PusherPubSub:
		return pubsubpusher.Dial(ctx, cfg.PubSub.ProjectID, pubsubpusher.Config{
			TopicPrefix: cfg.PubSub.TopicPrefix,
		})
	case config.PusherArchive:
		store, err := a.setupStorage(ctx)
		if err != nil {
			return nil, err
		}
		return archive.New(store, cfg.Storage.Prefix, a.logger.Named("archive"))
	case config.PusherPostgres:
		p, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		if err := p.EnsureSchema(ctx); err != nil {
			_ = p.Close(ctx)
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown pusher %q", name)
	}
}

func (a *App) setupStorage(ctx context.Context) (blobstore.BlobStore, error) {
	cfg := a.cfg.Storage
	switch cfg.Backend {
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, CacheControl: cfg.GCSCacheControl})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.addCloser("gcs", func(context.Context) error { return store.Close() })
		a.logger.Info("archiving to gcs", zap.String("bucket", cfg.GCSBucket))
		return store, nil
	case config.StorageMemory:
		a.logger.Info("archiving to memory")
		return memstore.NewBlobStore(), nil
	case config.StorageLocal, "":
		a.logger.Info("archiving to local filesystem", zap.String("base_dir", cfg.BaseDir))
		return local.New(local.Config{BaseDir: cfg.BaseDir})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
