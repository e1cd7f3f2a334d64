package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shortclick/shortclick/internal/handler/dto"
	"github.com/shortclick/shortclick/internal/model"
	"github.com/shortclick/shortclick/internal/repository"
	"github.com/shortclick/shortclick/internal/service"
	"github.com/shortclick/shortclick/internal/shortcode"
)

// URLHandler handles HTTP requests for shortened URLs.
type URLHandler struct {
	svc     *service.ShorteningService
	sweeper *service.Sweeper
	baseURL string
	logger  *slog.Logger
}

// NewURLHandler creates a new URLHandler.
func NewURLHandler(svc *service.ShorteningService, sweeper *service.Sweeper, baseURL string, logger *slog.Logger) *URLHandler {
	return &URLHandler{
		svc:     svc,
		sweeper: sweeper,
		baseURL: baseURL,
		logger:  logger.With("component", "handler.url"),
	}
}

// Create handles POST /api/v1/urls. The response is 200 whenever the batch
// was processed; per-item acceptance is reported in the body.
func (h *URLHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateURLsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	outcomes, err := h.svc.CreateBatch(r.Context(), req.ToCreationRequests())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	now := h.svc.Now()
	resp := dto.ToCreateURLsResponse(outcomes,
		func(rec *model.URLRecord) dto.URLResponse {
			return dto.ToURLResponse(rec, h.baseURL, now, service.TimeRemaining, false)
		},
		outcomeError,
	)

	h.logger.Info("url_batch_processed",
		"accepted", resp.Accepted,
		"rejected", resp.Rejected,
	)

	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /api/v1/urls.
func (h *URLHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	now := h.svc.Now()
	resp := dto.URLListResponse{
		Data:  make([]dto.URLResponse, len(records)),
		Count: len(records),
	}
	for i, rec := range records {
		resp.Data[i] = dto.ToURLResponse(rec, h.baseURL, now, service.TimeRemaining, false)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/urls/{shortCode}, including the click log.
func (h *URLHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "shortCode")

	rec, err := h.svc.Get(r.Context(), code)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToURLResponse(rec, h.baseURL, h.svc.Now(), service.TimeRemaining, true))
}

// Stats handles GET /api/v1/stats.
func (h *URLHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Sweep handles POST /api/v1/sweep.
func (h *URLHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.sweeper.SweepNow(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.logger.Info("sweep_requested", "remaining", remaining)
	writeJSON(w, http.StatusOK, dto.SweepResponse{Remaining: remaining})
}

// handleServiceError maps service errors to HTTP responses.
func (h *URLHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "URL_NOT_FOUND", "Short URL not found")
	case errors.Is(err, service.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, "EMPTY_BATCH", "At least one URL is required")
	case errors.Is(err, service.ErrBatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE", "Too many URLs in one request")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// outcomeError maps non-validation item errors to codes.
func outcomeError(err error) (string, string) {
	switch {
	case errors.Is(err, service.ErrPersistence):
		return "PERSISTENCE_ERROR", "The URL could not be saved"
	case errors.Is(err, shortcode.ErrCodeSpaceExhausted):
		return "CODE_SPACE_EXHAUSTED", "No free short code could be generated"
	default:
		return "INTERNAL_ERROR", "An internal error occurred"
	}
}
