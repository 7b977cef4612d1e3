package groups

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opsrelay/opsrelay/internal/permissions"
	"github.com/opsrelay/opsrelay/internal/platform/httpx"
	"github.com/opsrelay/opsrelay/internal/shared"
)

// Handler manages group endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.GroupView))
		r.Get("/", h.listGroups)
		r.Get("/{id}", h.getGroup)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.GroupCreate))
		r.Post("/", h.createGroup)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.GroupUpdate))
		r.Patch("/{id}", h.updateGroup)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.GroupDelete))
		r.Delete("/{id}", h.deleteGroup)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.GroupManageMembers))
		r.Post("/{id}/members", h.addMember)
		r.Delete("/{id}/members/{userRef}", h.removeMember)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireAny(permissions.GroupManageRoles))
		r.Post("/{id}/roles", h.assignRole)
		r.Delete("/{id}/roles/{name}", h.removeRole)
	})
}

type groupResponse struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	MemberUserRefs []string `json:"memberUserRefs"`
	RoleNames      []string `json:"roleNames"`
	Active         bool     `json:"active"`
}

func toResponse(group Group) groupResponse {
	return groupResponse{
		ID:             group.ID,
		Name:           group.Name,
		Description:    group.Description,
		MemberUserRefs: group.MemberUserRefs,
		RoleNames:      group.RoleNames,
		Active:         group.Active,
	}
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list groups failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]groupResponse, 0, len(list))
	for _, group := range list {
		out = append(out, toResponse(group))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": out})
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	group, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(group))
}

type createGroupRequest struct {
	Name           string   `json:"name" validate:"required,min=2"`
	Description    string   `json:"description"`
	MemberUserRefs []string `json:"memberUserRefs"`
	RoleNames      []string `json:"roleNames"`
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	group, err := h.service.Create(r.Context(), actorFrom(r), CreateParams{
		Name:           req.Name,
		Description:    req.Description,
		MemberUserRefs: req.MemberUserRefs,
		RoleNames:      req.RoleNames,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(group))
}

type updateGroupRequest struct {
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	var req updateGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	group, err := h.service.Update(r.Context(), actorFrom(r), id, UpdateParams{
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(group))
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorFrom(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type memberRequest struct {
	UserRef string `json:"userRef" validate:"required"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddMember(r.Context(), actorFrom(r), id, req.UserRef); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), actorFrom(r), id, chi.URLParam(r, "userRef")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignRole(r.Context(), actorFrom(r), id, req.Role); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), actorFrom(r), id, chi.URLParam(r, "name")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func groupID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "group id must be numeric")
		return 0, false
	}
	return id, true
}

func actorFrom(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.User()
	}
	return ""
}
