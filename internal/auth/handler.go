package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opsrelay/opsrelay/internal/platform/httpx"
	"github.com/opsrelay/opsrelay/internal/shared"
	"github.com/opsrelay/opsrelay/internal/users"
)

// Handler serves authentication endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	users    *users.Service
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, userSvc *users.Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		users:    userSvc,
		sessions: sessions,
		csrf:     csrf,
		validate: validator.New(),
	}
}

// MountRoutes registers authentication routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Post("/password", h.changePassword)
	r.Get("/me", h.me)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	UserRef                string   `json:"userRef"`
	Name                   string   `json:"name"`
	Roles                  []string `json:"roles"`
	Permissions            []string `json:"permissions"`
	ChangePasswordRequired bool     `json:"changePasswordRequired"`
	CSRFToken              string   `json:"csrfToken"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, claims, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("login reached handler without a session")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "session unavailable")
		return
	}
	sess.SetUser(user.UserRef)
	sess.SetClaims(claims)

	token, err := h.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("csrf token issuance failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not issue csrf token")
		return
	}

	httpx.JSON(w, http.StatusOK, loginResponse{
		UserRef:                user.UserRef,
		Name:                   user.Name,
		Roles:                  claims.Roles,
		Permissions:            claims.Permissions,
		ChangePasswordRequired: user.ChangePasswordRequired,
		CSRFToken:              token,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.users.ChangePassword(r.Context(), sess.User(), req.CurrentPassword, req.NewPassword); err != nil {
		httpx.RespondError(w, err)
		return
	}

	// The snapshot is re-issued so the credential reflects assignment changes
	// made since login.
	claims, err := h.service.Reissue(r.Context(), sess.User())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess.SetClaims(claims)
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	user, err := h.users.GetByRef(r.Context(), sess.User())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	claims := sess.Claims()
	resp := map[string]any{
		"userRef": user.UserRef,
		"email":   user.Email,
		"name":    user.Name,
		"active":  user.IsActive,
	}
	if claims != nil {
		resp["roles"] = claims.Roles
		resp["permissions"] = claims.Permissions
		resp["issuedAt"] = claims.IssuedAt
	}
	httpx.JSON(w, http.StatusOK, resp)
}
