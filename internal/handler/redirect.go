package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shortclick/shortclick/internal/middleware"
	"github.com/shortclick/shortclick/internal/model"
	"github.com/shortclick/shortclick/internal/service"
)

// RedirectHandler handles redirect requests.
type RedirectHandler struct {
	resolver *service.Resolver
	logger   *slog.Logger
}

// NewRedirectHandler creates a new RedirectHandler.
func NewRedirectHandler(resolver *service.Resolver, logger *slog.Logger) *RedirectHandler {
	return &RedirectHandler{
		resolver: resolver,
		logger:   logger.With("component", "handler.redirect"),
	}
}

// Redirect handles GET /{shortCode}.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")
	start := time.Now()

	visit := model.Visit{
		Referrer:  r.Referer(),
		UserAgent: r.UserAgent(),
		IPAddress: middleware.ClientIP(r),
	}

	outcome, err := h.resolver.Resolve(r.Context(), shortCode, visit)
	duration := durationMS(time.Since(start))
	if err != nil {
		h.logger.Error("redirect_error",
			"short_code", shortCode,
			"error", err,
			"duration_ms", duration,
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	switch outcome.Status {
	case model.RedirectNotFound:
		h.logger.Info("redirect_not_found", "short_code", shortCode, "duration_ms", duration)
		writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")

	case model.RedirectExpired:
		h.logger.Info("redirect_expired", "short_code", shortCode, "duration_ms", duration)
		writeError(w, http.StatusGone, "LINK_EXPIRED", "Link has expired")

	default:
		h.logger.Info("redirect_success",
			"short_code", outcome.Record.ShortCode,
			"click_count", outcome.Record.ClickCount,
			"duration_ms", duration,
		)
		http.Redirect(w, r, outcome.Target, http.StatusFound)
	}
}
