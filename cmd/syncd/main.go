// Package main is the entrypoint for syncd, the sync scheduler daemon.
//
// syncd runs one ticker per enabled feed. On each tick it attempts the
// feed's realtime lease and, on success, enqueues one sync job carrying the
// lease token. The sync workers do the actual fetching; syncd only decides
// when a feed is due and guarantees at most one concurrent cycle per feed.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"ordersync/internal/config"
	"ordersync/internal/connector"
	"ordersync/internal/engine"
	"ordersync/internal/kv"
	"ordersync/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.Info("syncd starting", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	scheduler := engine.NewScheduler(engine.SchedulerConfig{
		Registry: registry,
		Locks:    kv.NewLockManager(rdb, logger),
		Jobs:     queue.NewPublisher(sqsClient, cfg.AWS.SyncQueueURL, logger),
		Logger:   logger,
	})

	logger.Info("syncd initialized", "feeds", len(registry.All()))
	scheduler.Run(ctx)
	logger.Info("syncd stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.Service, "component", "syncd")
	slog.SetDefault(logger)
	return logger
}
