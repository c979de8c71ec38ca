package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/askbase/askbase/internal/answer"
	"github.com/askbase/askbase/internal/log"
)

// defaultStatsTopN is the number of top answers in the stats payload.
const defaultStatsTopN = 10

// statsProvider is the usage-statistics surface consumed by the handler.
type statsProvider interface {
	Stats(ctx context.Context, topN int) (*answer.Stats, error)
}

// refresher rebuilds serving state after a deployment: the resolver's
// candidate snapshot and the router's partition configuration.
type refresher interface {
	Refresh(ctx context.Context) error
}

// AdminHandler handles the operational endpoints. Statistics feed
// dashboards, never serving decisions.
type AdminHandler struct {
	stats     statsProvider
	refresher refresher
	logger    log.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(stats statsProvider, refresher refresher, logger log.Logger) *AdminHandler {
	return &AdminHandler{stats: stats, refresher: refresher, logger: logger}
}

// RegisterRoutes registers admin routes on the given mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("POST /api/admin/refresh", h.handleRefresh)
}

// handleStats returns aggregate usage counts, the top-N most-used
// canonical answers, and the average confidence.
func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	topN := defaultStatsTopN
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid_request", "top must be 1-100")
			return
		}
		topN = n
	}

	stats, err := h.stats.Stats(r.Context(), topN)
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "could not compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleRefresh re-initializes the serving state (used after
// deployments).
func (h *AdminHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.Refresh(r.Context()); err != nil {
		h.logger.Error("refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "refresh_failed", "could not refresh serving state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
