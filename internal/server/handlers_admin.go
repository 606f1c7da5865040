package server

import (
	"net/http"
)

const recentStatsLimit = 5

// HandleAdminStats handles GET /api/admin/stats (admin only).
func (h *Handlers) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.PlatformStats(r.Context(), min(max(queryInt(r, "recent", recentStatsLimit), 1), 50))
	if err != nil {
		h.writeInternalError(w, r, "failed to load platform stats", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}
