package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opsrelay/opsrelay/internal/permissions"
	"github.com/opsrelay/opsrelay/internal/platform/httpx"
	"github.com/opsrelay/opsrelay/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.UserView))
		r.Get("/", h.listUsers)
		r.Get("/{ref}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.UserCreate))
		r.Post("/", h.createUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.UserUpdate))
		r.Put("/{ref}/active", h.setActive)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.UserManageRoles))
		r.Post("/{ref}/roles/{role}", h.assignRole)
		r.Delete("/{ref}/roles/{role}", h.removeRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.UserDelete))
		r.Delete("/{ref}", h.purgeUser)
	})
}

type userResponse struct {
	UserRef         string   `json:"userRef"`
	Email           string   `json:"email"`
	Name            string   `json:"name"`
	IsActive        bool     `json:"isActive"`
	DirectRoleNames []string `json:"directRoleNames"`
	GroupRefs       []int64  `json:"groupRefs"`
}

func toResponse(user User) userResponse {
	return userResponse{
		UserRef:         user.UserRef,
		Email:           user.Email,
		Name:            user.Name,
		IsActive:        user.IsActive,
		DirectRoleNames: user.DirectRoleNames,
		GroupRefs:       user.GroupRefs,
	}
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toResponse(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetByRef(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

type createUserRequest struct {
	UserRef         string   `json:"userRef" validate:"required,min=3"`
	Email           string   `json:"email" validate:"required,email"`
	Name            string   `json:"name" validate:"required"`
	Password        string   `json:"password" validate:"required,min=8"`
	DirectRoleNames []string `json:"directRoleNames"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Create(r.Context(), actorFrom(r), CreateParams{
		UserRef:         req.UserRef,
		Email:           req.Email,
		Name:            req.Name,
		Password:        req.Password,
		DirectRoleNames: req.DirectRoleNames,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(user))
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.service.SetActive(r.Context(), actorFrom(r), chi.URLParam(r, "ref"), req.Active); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AssignDirectRole(r.Context(), actorFrom(r), chi.URLParam(r, "ref"), chi.URLParam(r, "role")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveDirectRole(r.Context(), actorFrom(r), chi.URLParam(r, "ref"), chi.URLParam(r, "role")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) purgeUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Purge(r.Context(), actorFrom(r), chi.URLParam(r, "ref")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func actorFrom(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.User()
	}
	return ""
}
