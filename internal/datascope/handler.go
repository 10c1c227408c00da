package datascope

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
)

// Invalidator drops cached department subtrees.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler exposes department cache maintenance. Route guards are applied by
// the caller.
type Handler struct {
	logger *slog.Logger
	cache  Invalidator
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, cache Invalidator) *Handler {
	return &Handler{logger: logger, cache: cache}
}

// MountRoutes registers department cache routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/cache/invalidate", h.invalidate)
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("invalidate department cache", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("department cache invalidated")
	w.WriteHeader(http.StatusNoContent)
}
