package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opsrelay/opsrelay/internal/permissions"
	"github.com/opsrelay/opsrelay/internal/platform/httpx"
	"github.com/opsrelay/opsrelay/internal/shared"
)

// Handler exposes audit review endpoints.
type Handler struct {
	logger *slog.Logger
	sink   *PGSink
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, sink *PGSink) *Handler {
	return &Handler{logger: logger, sink: sink}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.SystemAudit))
		r.Get("/", h.listRecent)
	})
}

func (h *Handler) listRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.sink.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}
