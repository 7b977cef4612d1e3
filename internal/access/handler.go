package access

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsrelay/opsrelay/internal/observability"
	"github.com/opsrelay/opsrelay/internal/permissions"
	"github.com/opsrelay/opsrelay/internal/platform/httpx"
	"github.com/opsrelay/opsrelay/internal/shared"
)

// Reconciler is the group-service surface the reconciliation endpoint needs.
type Reconciler interface {
	Reconcile(ctx context.Context, actor string) (int, error)
}

// Handler serves resolution, matrix and reconciliation endpoints.
type Handler struct {
	logger     *slog.Logger
	resolver   *Resolver
	cache      *MatrixCache
	reconciler Reconciler
	metrics    *observability.Metrics
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, cache *MatrixCache, reconciler Reconciler, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, resolver: resolver, cache: cache, reconciler: reconciler, metrics: metrics}
}

// MountRoutes registers access resolution routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.UserView))
		r.Get("/users/{ref}/roles", h.effectiveRoles)
		r.Get("/users/{ref}/permissions", h.effectivePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.RoleView))
		r.Get("/matrix", h.matrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.SystemAdmin))
		r.Post("/reconcile", h.reconcile)
	})
}

func (h *Handler) effectiveRoles(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	h.metrics.CountResolution()
	effective, err := h.resolver.EffectiveRoles(r.Context(), ref)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"userRef": ref, "roles": effective})
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	h.metrics.CountResolution()
	perms, err := h.resolver.EffectivePermissions(r.Context(), ref)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"userRef": ref, "permissions": perms})
}

func (h *Handler) matrix(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.Get(r.Context()); ok {
		httpx.JSON(w, http.StatusOK, cached)
		return
	}
	matrix, err := h.resolver.BuildMatrix(r.Context())
	if err != nil {
		h.logger.Error("matrix build failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.cache.Store(r.Context(), matrix)
	httpx.JSON(w, http.StatusOK, matrix)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	actor := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		actor = sess.User()
	}
	repaired, err := h.reconciler.Reconcile(r.Context(), actor)
	if err != nil {
		h.logger.Error("reconciliation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.CountRepairs(repaired)
	h.cache.Invalidate(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{"repairedCount": repaired})
}
