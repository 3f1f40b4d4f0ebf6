// Package main is the entrypoint for the sync worker.
//
// The worker long-polls the job queue and executes sync cycles: fetch one
// page from the feed, normalize, persist idempotently, queue newly-seen
// orders for relay, advance the cursor, and chain the next job when more
// pages remain.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"ordersync/internal/config"
	"ordersync/internal/connector"
	"ordersync/internal/db"
	"ordersync/internal/engine"
	"ordersync/internal/kv"
	"ordersync/internal/metrics"
	"ordersync/internal/queue"
	"ordersync/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.Info("sync worker starting", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := kv.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	registry, err := connector.NewRegistryFromConfig(cfg.Feeds)
	if err != nil {
		logger.Error("failed to build feed registry", "error", err)
		os.Exit(1)
	}

	var engineMetrics engine.Metrics = engine.NoopMetrics{}
	if cfg.AWS.MetricNamespace != "" {
		engineMetrics = metrics.NewCloudWatch(
			cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, logger)
	}

	eng := engine.New(engine.Config{
		Registry:         registry,
		Locks:            kv.NewLockManager(rdb, logger),
		Cursors:          kv.NewCursorStore(rdb),
		Sink:             db.NewOrderRepository(pool),
		Relay:            relay.NewPublisher(db.NewRelayRepository(pool), logger),
		Jobs:             queue.NewPublisher(sqsClient, cfg.AWS.SyncQueueURL, logger),
		Metrics:          engineMetrics,
		Logger:           logger,
		ParseConcurrency: cfg.Engine.ParseConcurrency,
	})

	consumer := queue.NewConsumer(queue.ConsumerConfig{
		Client:      sqsClient,
		QueueURL:    cfg.AWS.SyncQueueURL,
		Handler:     eng.RunJob,
		Concurrency: cfg.Engine.WorkerConcurrency,
		JobTimeout:  cfg.Engine.JobTimeout,
		Logger:      logger,
	})

	logger.Info("sync worker initialized",
		"feeds", len(registry.All()),
		"concurrency", cfg.Engine.WorkerConcurrency)
	consumer.Run(ctx)
	logger.Info("sync worker stopped")
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Reveal())
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.Service, "component", "sync-worker")
	slog.SetDefault(logger)
	return logger
}
