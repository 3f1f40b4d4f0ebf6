// Package config defines the global configuration for the ordersync daemons.
// Configuration is loaded once at process startup and is immutable
// thereafter. Values come from OS environment variables, optionally seeded
// from a dotenv file for local development. Any missing required value or
// invalid format fails the process immediately on startup.
package config

import (
	"time"

	"ordersync/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used in configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"ordersync"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AWS      AWSConfig
	Engine   EngineConfig
	Relay    RelayConfig
	Feeds    FeedsConfig
}

// ServerConfig holds the admin API listener settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds Postgres connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// RedisConfig holds the shared key-value store (locks + cursors) settings.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR" validate:"required"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	SyncQueueURL string `envconfig:"SQS_SYNC_JOBS" validate:"required,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`

	// MetricNamespace is the CloudWatch namespace for engine metrics.
	// Empty disables metric emission.
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"OrderSync"`
}

// EngineConfig holds sync cycle tuning parameters.
type EngineConfig struct {
	// ParseConcurrency bounds the fan-out when parsing a page of raw items.
	ParseConcurrency int `envconfig:"PARSE_CONCURRENCY" default:"20"`

	// JobTimeout is the hard wall-clock bound on a single sync job. Lock
	// leases must be comfortably longer than this so an abandoned job's
	// lease still expires.
	JobTimeout time.Duration `envconfig:"JOB_TIMEOUT" default:"60s"`

	// WorkerConcurrency bounds concurrent jobs in the sync worker.
	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"8"`

	// BackfillWindow is the chunk size when a time range is split into
	// fixed windows for backfill.
	BackfillWindow time.Duration `envconfig:"BACKFILL_WINDOW" default:"60s"`
}

// FeedsConfig holds upstream marketplace feed settings. Feeds not listed in
// Enabled are not registered and never polled.
type FeedsConfig struct {
	Enabled []string `envconfig:"FEEDS_ENABLED" default:"opensea,looksrare,rarible,x2y2,zeroex-v4"`

	PageSize int `envconfig:"FEED_PAGE_SIZE" default:"50"`

	// Per-feed API keys. Feeds with no key configured are queried
	// unauthenticated at whatever rate the upstream allows.
	OpenSeaAPIKey   SecretString `envconfig:"OPENSEA_API_KEY"`
	LooksRareAPIKey SecretString `envconfig:"LOOKSRARE_API_KEY"`
	RaribleAPIKey   SecretString `envconfig:"RARIBLE_API_KEY"`
	X2Y2APIKey      SecretString `envconfig:"X2Y2_API_KEY"`
	ZeroExAPIKey    SecretString `envconfig:"ZEROEX_API_KEY"`

	// Base URL overrides for integration testing against stubs. Empty means
	// the production endpoint.
	OpenSeaBaseURL   string `envconfig:"OPENSEA_BASE_URL"`
	LooksRareBaseURL string `envconfig:"LOOKSRARE_BASE_URL"`
	RaribleBaseURL   string `envconfig:"RARIBLE_BASE_URL"`
	X2Y2BaseURL      string `envconfig:"X2Y2_BASE_URL"`
	ZeroExBaseURL    string `envconfig:"ZEROEX_BASE_URL"`
}

// RelayConfig holds downstream forwarding and compaction settings.
type RelayConfig struct {
	// DownstreamURL is the consumer ingestion endpoint newly-seen orders
	// are forwarded to.
	DownstreamURL string       `envconfig:"RELAY_DOWNSTREAM_URL" validate:"required,url"`
	APIKey        SecretString `envconfig:"RELAY_API_KEY"`

	BatchSize    int           `envconfig:"RELAY_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"RELAY_POLL_INTERVAL" default:"2s"`

	// Retention bounds how long terminal (sent/failed) relay entries are
	// kept before compaction removes them.
	Retention       time.Duration `envconfig:"RELAY_RETENTION" default:"24h"`
	CompactInterval time.Duration `envconfig:"RELAY_COMPACT_INTERVAL" default:"1h"`

	// ArchiveDir receives compacted entries as zstd-compressed JSONL before
	// they are deleted. Empty disables archiving (entries are just purged).
	ArchiveDir string `envconfig:"RELAY_ARCHIVE_DIR"`
}
