package api

import (
	"net/http"

	"ordersync/internal/connector"
)

// FeedsHandler exposes the enabled feed catalogue for operators.
type FeedsHandler struct {
	registry *connector.Registry
}

// NewFeedsHandler creates a FeedsHandler.
func NewFeedsHandler(registry *connector.Registry) *FeedsHandler {
	return &FeedsHandler{registry: registry}
}

type feedInfo struct {
	Source           string `json:"source"`
	RealtimeInterval string `json:"realtime_interval"`
	RealtimeLease    string `json:"realtime_lease"`
	BackfillLease    string `json:"backfill_lease"`
}

// List handles GET /admin/feeds.
func (h *FeedsHandler) List(w http.ResponseWriter, r *http.Request) {
	feeds := h.registry.All()
	out := make([]feedInfo, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, feedInfo{
			Source:           string(f.Connector.Source()),
			RealtimeInterval: f.Schedule.RealtimeInterval.String(),
			RealtimeLease:    f.Schedule.RealtimeLease.String(),
			BackfillLease:    f.Schedule.BackfillLease.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": out})
}
