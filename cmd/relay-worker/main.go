// Package main is the entrypoint for the relay worker.
//
// The relay worker drains the durable relay queue: it delivers newly-seen
// orders to the downstream consumer with bounded retries, and periodically
// compacts terminal entries into zstd archives so the queue table stays
// small.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"ordersync/internal/config"
	"ordersync/internal/db"
	"ordersync/internal/httpx"
	"ordersync/internal/metrics"
	"ordersync/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.Info("relay worker starting", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := db.NewRelayRepository(pool)

	downstream := relay.NewDownstreamClient(
		httpx.New(&http.Client{Timeout: 30 * time.Second}, "relay-downstream",
			httpx.DefaultRetryPolicy(), "ordersync/1.0"),
		cfg.Relay.DownstreamURL,
		cfg.Relay.APIKey,
	)

	var relayMetrics relay.Metrics = relay.NoopMetrics{}
	if cfg.AWS.MetricNamespace != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		relayMetrics = metrics.NewCloudWatch(
			cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, logger)
	}

	worker := relay.NewWorker(relay.WorkerConfig{
		Store:      repo,
		Downstream: downstream,
		Policy:     relay.DefaultRetryPolicy,
		BatchSize:  cfg.Relay.BatchSize,
		Interval:   cfg.Relay.PollInterval,
		Metrics:    relayMetrics,
		Logger:     logger,
	})

	compactor := relay.NewCompactor(relay.CompactorConfig{
		Store:      repo,
		Retention:  cfg.Relay.Retention,
		Interval:   cfg.Relay.CompactInterval,
		ArchiveDir: cfg.Relay.ArchiveDir,
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return compactor.Run(gctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("relay worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("relay worker stopped")
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
		With("service", cfg.Service, "component", "relay-worker")
	slog.SetDefault(logger)
	return logger
}
