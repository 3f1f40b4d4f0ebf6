package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://user:pw@localhost:5432/ordersync")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SQS_SYNC_JOBS", "https://sqs.us-east-1.amazonaws.com/123/sync-jobs")
	t.Setenv("RELAY_DOWNSTREAM_URL", "https://consumer.internal/ingest")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %q", cfg.Environment)
	}
	if cfg.Engine.ParseConcurrency != 20 {
		t.Errorf("expected parse concurrency 20, got %d", cfg.Engine.ParseConcurrency)
	}
	if cfg.Engine.JobTimeout != 60*time.Second {
		t.Errorf("expected job timeout 60s, got %s", cfg.Engine.JobTimeout)
	}
	if cfg.Relay.BatchSize != 50 {
		t.Errorf("expected relay batch size 50, got %d", cfg.Relay.BatchSize)
	}
	if cfg.Relay.Retention != 24*time.Hour {
		t.Errorf("expected relay retention 24h, got %s", cfg.Relay.Retention)
	}
	if len(cfg.Feeds.Enabled) == 0 {
		t.Error("expected default enabled feeds")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error with DATABASE_URL unset")
	}
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production-ish")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for unknown environment")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_CONCURRENCY", "16")
	t.Setenv("FEEDS_ENABLED", "opensea,rarible")
	t.Setenv("RELAY_POLL_INTERVAL", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.WorkerConcurrency != 16 {
		t.Errorf("expected worker concurrency 16, got %d", cfg.Engine.WorkerConcurrency)
	}
	if strings.Join(cfg.Feeds.Enabled, ",") != "opensea,rarible" {
		t.Errorf("unexpected enabled feeds %v", cfg.Feeds.Enabled)
	}
	if cfg.Relay.PollInterval != 500*time.Millisecond {
		t.Errorf("expected poll interval 500ms, got %s", cfg.Relay.PollInterval)
	}
}

func TestSecretRedaction(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.URL.String() != "[REDACTED]" {
		t.Errorf("secret leaked through String(): %q", cfg.Database.URL.String())
	}
	if cfg.Database.URL.Reveal() != "postgres://user:pw@localhost:5432/ordersync" {
		t.Error("Reveal must return the raw value")
	}
}
