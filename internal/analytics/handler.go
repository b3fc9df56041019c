package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Handler serves the aggregated statistics over HTTP.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves GET /api/v1/analytics. An optional ?top=N shortens the
// ranked query and term lists to at most N entries.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.aggregator.Stats()

	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be a non-negative integer"})
			return
		}
		stats.TopQueries = truncate(stats.TopQueries, n)
		stats.ZeroResultQueries = truncate(stats.ZeroResultQueries, n)
		stats.TopTerms = truncate(stats.TopTerms, n)
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func truncate(counts []QueryCount, n int) []QueryCount {
	if len(counts) > n {
		return counts[:n]
	}
	return counts
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
