package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/metrics"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, req *ingestion.PageRequest) (*ingestion.PageResponse, error)
	Remove(ctx context.Context, url string) (*ingestion.PageResponse, error)
}

type Handler struct {
	enqueuer  Enqueuer
	validator *validator.Validator
	maxBody   int64
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds the ingestion handler. m may be nil.
func New(enqueuer Enqueuer, v *validator.Validator, maxBody int, m *metrics.Metrics) *Handler {
	return &Handler{
		enqueuer:  enqueuer,
		validator: v,
		// Room for the JSON envelope and the other fields around the body.
		maxBody: int64(maxBody) + 64<<10,
		metrics: m,
		logger:  slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest serves POST /api/v1/pages.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.PageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(&req); err != nil {
		h.count("invalid")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.count("invalid")
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.enqueuer.Enqueue(ctx, &req)
	if err != nil {
		h.count("failed")
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "url", req.URL, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}

	h.count("queued")
	log.Info("page queued", "url", resp.URL, "body_bytes", len(req.Body))
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Remove serves DELETE /api/v1/pages?url=...
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if err := h.validator.ValidateURL(url); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.enqueuer.Remove(ctx, url)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		logger.FromContext(ctx).Error("removal failed", "url", url, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "removal failed")
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) count(status string) {
	if h.metrics != nil {
		h.metrics.PagesIngestedTotal.WithLabelValues(status).Inc()
	}
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
