package api

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler reports liveness of the service's backing stores.
type HealthHandler struct {
	db Pinger
	kv Pinger
}

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	KV       string `json:"kv"`
}

// Check handles GET /healthz. Returns 503 if either backing store is
// unreachable.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := healthStatus{Status: "ok", Database: "ok", KV: "ok"}
	code := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Database = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if h.kv != nil {
		if err := h.kv.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.KV = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, status)
}
