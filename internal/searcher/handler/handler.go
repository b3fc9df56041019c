package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/middleware"
)

const maxRequestBody = 64 << 10

type Searcher interface {
	Search(ctx context.Context, query string) (*engine.Result, error)
}

type ResultCache interface {
	GetOrCompute(ctx context.Context, query string, computeFn func(context.Context) (*engine.Result, error)) (*engine.Result, bool, error)
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) (int64, error)
}

type Tracker interface {
	TrackSearch(event analytics.SearchEvent)
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	ExecutionSeconds float64           `json:"executionSeconds"`
	Results          []ranker.Document `json:"results"`
}

type Handler struct {
	searcher Searcher
	cache    ResultCache
	tracker  Tracker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Handler)

func WithCache(c ResultCache) Option { return func(h *Handler) { h.cache = c } }

func WithTracker(t Tracker) Option { return func(h *Handler) { h.tracker = t } }

func WithMetrics(m *metrics.Metrics) Option { return func(h *Handler) { h.metrics = m } }

func New(searcher Searcher, opts ...Option) *Handler {
	h := &Handler{
		searcher: searcher,
		logger:   slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Query serves POST /api/query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, cacheHit, err := h.search(ctx, req.Query)
	elapsed := time.Since(start)
	if err != nil {
		log.Error("search failed", "query", req.Query, "error", err)
		h.observe("error", cacheHit, elapsed, 0)
		h.track(ctx, analytics.SearchEvent{
			Type:      analytics.EventSearchError,
			Query:     req.Query,
			LatencyMs: elapsed.Milliseconds(),
			Error:     err.Error(),
		})
		h.writeError(w, statusFor(err), "search failed")
		return
	}

	resultType := "hit"
	switch {
	case len(result.Terms) == 0:
		resultType = "empty_query"
	case len(result.Results) == 0:
		resultType = "zero_result"
	}
	h.observe(resultType, cacheHit, elapsed, len(result.Results))

	log.Info("search completed",
		"query", req.Query,
		"terms", len(result.Terms),
		"results", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.track(ctx, analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     req.Query,
		Terms:     result.Terms,
		Results:   len(result.Results),
		LatencyMs: elapsed.Milliseconds(),
		CacheHit:  cacheHit,
	})

	h.writeJSON(w, http.StatusOK, queryResponse{
		ExecutionSeconds: elapsed.Seconds(),
		Results:          result.Results,
	})
}

func (h *Handler) search(ctx context.Context, query string) (*engine.Result, bool, error) {
	if h.cache == nil || len(tokenizer.Tokenize(query)) == 0 {
		result, err := h.searcher.Search(ctx, query)
		return result, false, err
	}
	return h.cache.GetOrCompute(ctx, query, func(ctx context.Context) (*engine.Result, error) {
		return h.searcher.Search(ctx, query)
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) observe(resultType string, cacheHit bool, elapsed time.Duration, results int) {
	if h.metrics == nil {
		return
	}
	cacheStatus := "miss"
	switch {
	case h.cache == nil:
		cacheStatus = "disabled"
	case cacheHit:
		cacheStatus = "hit"
		h.metrics.CacheHitsTotal.Inc()
	default:
		h.metrics.CacheMissesTotal.Inc()
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	if resultType != "error" {
		h.metrics.SearchResultsCount.Observe(float64(results))
	}
}

func (h *Handler) track(ctx context.Context, event analytics.SearchEvent) {
	if h.tracker == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.RequestID = middleware.GetRequestID(ctx)
	h.tracker.TrackSearch(event)
}

// statusFor maps engine errors to a status. A cancelled or expired request
// context is reported as a timeout.
func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusGatewayTimeout
	}
	return apperrors.HTTPStatusCode(err)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
