package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whisper/moderation/internal/api"
	"github.com/whisper/moderation/internal/blob"
	"github.com/whisper/moderation/internal/config"
	"github.com/whisper/moderation/internal/logging"
	"github.com/whisper/moderation/internal/messaging"
	"github.com/whisper/moderation/internal/moderation"
	"github.com/whisper/moderation/internal/provider"
	"github.com/whisper/moderation/internal/ratelimit"
	"github.com/whisper/moderation/internal/report"
	"github.com/whisper/moderation/internal/store"
	"github.com/whisper/moderation/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("moderator exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting moderation service")

	// Postgres.
	db, err := openPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := tracker.Migrate(db); err != nil {
		return err
	}

	// Redis.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	// NATS.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATS.URL
	natsConfig.Name = "whisper-moderator"
	natsClient, err := messaging.NewNATSClient(natsConfig, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close()

	blobs := blob.Connect(blob.Config{
		Endpoint:  cfg.Blob.Endpoint,
		Region:    cfg.Blob.Region,
		Bucket:    cfg.Blob.Bucket,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
		PathStyle: cfg.Blob.PathStyle,
	})

	proactive, reactive := providers(cfg, logger)
	logger.Info("review providers",
		zap.String("proactive", proactive.Name()),
		zap.String("reactive", reactive.Name()))

	signer, err := moderation.NewCallbackSigner(cfg.HTTP.CallbackSecret)
	if err != nil {
		return err
	}

	svc := moderation.NewService(moderation.Config{CallbackBaseURL: cfg.HTTP.CallbackBaseURL}, moderation.Deps{
		Stores: &moderation.Stores{
			Content:   store.NewContent(rdb),
			Users:     store.NewUsers(rdb),
			Images:    store.NewImages(rdb, blobs, cfg.Blob.CDNBase),
			AppConfig: store.NewCachedAppConfig(store.NewAppConfig(rdb), cfg.AppConfig.CacheSize, cfg.AppConfig.CacheTTL),
		},
		Tracker:   tracker.NewStore(db),
		Reports:   report.NewStore(db),
		Queue:     messaging.NewQueue(natsClient),
		Callbacks: signer,
		Throttle: ratelimit.NewReporterThrottle(ratelimit.NewLimiter(rdb, logger), ratelimit.Rule{
			Key:    ratelimit.RuleReport.Key,
			Limit:  cfg.Reports.Limit,
			Window: cfg.Reports.Window,
		}),
		Proactive: proactive,
		Reactive:  reactive,
		Logger:    logger,
	})

	if err := messaging.NewWorkers(svc, logger).Start(ctx, natsClient, cfg.NATS.Group, cfg.NATS.Concurrency); err != nil {
		return err
	}

	server := api.NewServer(svc, func(ctx context.Context) error {
		if !natsClient.Healthy() {
			return fmt.Errorf("nats disconnected")
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return db.PingContext(ctx)
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(cfg.HTTP.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openPostgres retries the first connection so the service can start before
// the database is ready.
func openPostgres(ctx context.Context, cfg config.Postgres, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.ConnectWait
	err = backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("postgres not ready", zap.Duration("retry_in", wait), zap.Error(err))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return db, nil
}

// providers picks the remote providers that are configured and falls back to
// the in-process keyword filter for the rest.
func providers(cfg *config.Config, logger *zap.Logger) (proactive, reactive moderation.Provider) {
	local := provider.NewLocal(provider.NewFilter(cfg.Filter.Terms...))
	proactive, reactive = local, local

	if cfg.Classifier.Endpoint != "" {
		client := provider.NewHTTPClient(clientConfig(cfg.Classifier), logger)
		proactive = provider.NewClassifier(cfg.Classifier.Endpoint, cfg.Classifier.APIKey, client)
	}
	if cfg.Review.Endpoint != "" {
		client := provider.NewHTTPClient(clientConfig(cfg.Review), logger)
		reactive = provider.NewReview(cfg.Review.Endpoint, cfg.Review.APIKey, client)
	}
	return proactive, reactive
}

func clientConfig(p config.Provider) provider.ClientConfig {
	cc := provider.DefaultClientConfig()
	cc.Timeout = p.Timeout
	cc.RetryMax = p.Retries
	return cc
}
