package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ordersync/internal/connector"
)

// Pinger reports liveness of a backing store. Satisfied by pgxpool.Pool
// directly and by PingFunc adapters for anything else.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to the Pinger interface.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterConfig wires the admin API's dependencies.
type RouterConfig struct {
	Registry *connector.Registry
	Jobs     jobEnqueuer

	// Locks lets the backfill handler refuse submissions that conflict
	// with a running chain. Satisfied by kv.LockManager.
	Locks lockProber

	// BackfillWindow is the default chunk size for backfill submissions.
	BackfillWindow time.Duration

	DB     Pinger
	KV     Pinger
	Logger *slog.Logger
}

// NewRouter builds the admin API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := &HealthHandler{db: cfg.DB, kv: cfg.KV}
	r.Get("/healthz", health.Check)

	backfill := NewBackfillHandler(cfg.Registry, cfg.Jobs, cfg.Locks, cfg.BackfillWindow, cfg.Logger)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/backfill", backfill.Submit)
		r.Get("/feeds", NewFeedsHandler(cfg.Registry).List)
	})

	return r
}
