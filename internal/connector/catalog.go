package connector

import (
	"fmt"
	"net/http"
	"time"

	"ordersync/internal/config"
	"ordersync/internal/httpx"
	"ordersync/internal/types"
)

// catalogEntry describes how to construct one feed's connector.
type catalogEntry struct {
	build        func(client *httpx.Client, cfg FeedConfig) Connector
	baseURL      string
	apiKeyHeader string
}

// catalog maps every implemented source kind to its builder and production
// endpoint.
var catalog = map[types.SourceKind]catalogEntry{
	types.SourceOpenSea: {
		build:        NewOpenSea,
		baseURL:      "https://api.opensea.io",
		apiKeyHeader: "X-API-KEY",
	},
	types.SourceLooksRare: {
		build:        NewLooksRare,
		baseURL:      "https://api.looksrare.org",
		apiKeyHeader: "X-Looks-Api-Key",
	},
	types.SourceRarible: {
		build:        NewRarible,
		baseURL:      "https://api.rarible.org",
		apiKeyHeader: "X-API-KEY",
	},
	types.SourceX2Y2: {
		build:        NewX2Y2,
		baseURL:      "https://api.x2y2.org",
		apiKeyHeader: "X-API-KEY",
	},
	types.SourceZeroExV4: {
		build:        NewZeroExV4,
		baseURL:      "https://api.0x.org",
		apiKeyHeader: "0x-api-key",
	},
}

// NewRegistryFromConfig builds the feed registry for the enabled sources.
// Each feed gets its own httpx client so one upstream's outage trips only
// its own circuit breaker. An enabled source with no implemented connector
// is a configuration error.
func NewRegistryFromConfig(cfg config.FeedsConfig) (*Registry, error) {
	registry := NewRegistry()

	for _, name := range cfg.Enabled {
		source := types.SourceKind(name)
		if !source.Valid() {
			return nil, fmt.Errorf("connector: unknown feed %q in FEEDS_ENABLED", name)
		}
		entry, ok := catalog[source]
		if !ok {
			return nil, fmt.Errorf("connector: feed %q has no connector implementation", name)
		}

		baseURL, apiKey := overridesFor(cfg, source)
		if baseURL == "" {
			baseURL = entry.baseURL
		}

		client := httpx.New(
			&http.Client{Timeout: 30 * time.Second},
			"feed-"+name,
			httpx.DefaultRetryPolicy(),
			"ordersync/1.0",
		)

		registry.Register(entry.build(client, FeedConfig{
			BaseURL:      baseURL,
			APIKeyHeader: entry.apiKeyHeader,
			APIKey:       apiKey,
			PageSize:     cfg.PageSize,
		}))
	}

	return registry, nil
}

func overridesFor(cfg config.FeedsConfig, source types.SourceKind) (baseURL, apiKey string) {
	switch source {
	case types.SourceOpenSea:
		return cfg.OpenSeaBaseURL, cfg.OpenSeaAPIKey.Reveal()
	case types.SourceLooksRare:
		return cfg.LooksRareBaseURL, cfg.LooksRareAPIKey.Reveal()
	case types.SourceRarible:
		return cfg.RaribleBaseURL, cfg.RaribleAPIKey.Reveal()
	case types.SourceX2Y2:
		return cfg.X2Y2BaseURL, cfg.X2Y2APIKey.Reveal()
	case types.SourceZeroExV4:
		return cfg.ZeroExBaseURL, cfg.ZeroExAPIKey.Reveal()
	default:
		return "", ""
	}
}
