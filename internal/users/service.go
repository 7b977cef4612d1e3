package users

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/opsrelay/opsrelay/internal/audit"
	"github.com/opsrelay/opsrelay/internal/shared"
)

// Service handles user management business logic.
type Service struct {
	repo    RepositoryPort
	auditor *audit.Emitter
	logger  *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, auditor *audit.Emitter, logger *slog.Logger) *Service {
	return &Service{repo: repo, auditor: auditor, logger: logger}
}

// CreateParams collects the fields required to create a user.
type CreateParams struct {
	UserRef         string
	Email           string
	Name            string
	Password        string
	DirectRoleNames []string
}

// Create registers a new user with a hashed password.
func (s *Service) Create(ctx context.Context, actor string, params CreateParams) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Insert(ctx, User{
		UserRef:                params.UserRef,
		Email:                  params.Email,
		Name:                   params.Name,
		PasswordHash:           string(hash),
		IsActive:               true,
		ChangePasswordRequired: true,
		DirectRoleNames:        params.DirectRoleNames,
	})
	if err != nil {
		return User{}, err
	}
	s.auditor.Emit(ctx, actor, "user.created", "user", user.UserRef, nil)
	return user, nil
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// GetByRef returns a single user by stable reference.
func (s *Service) GetByRef(ctx context.Context, ref string) (User, error) {
	return s.repo.GetByRef(ctx, ref)
}

// GetByEmail returns a single user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// SetActive toggles the active flag for a user.
func (s *Service) SetActive(ctx context.Context, actor, ref string, active bool) error {
	if err := s.repo.SetActive(ctx, ref, active); err != nil {
		return err
	}
	s.auditor.Emit(ctx, actor, "user.active_changed", "user", ref, map[string]any{"active": active})
	return nil
}

// AssignDirectRole attaches a role name directly to the user. The name is not
// required to resolve to an existing role; a dangling name simply grants
// nothing until a role with that name exists.
func (s *Service) AssignDirectRole(ctx context.Context, actor, ref, roleName string) error {
	changed, err := s.repo.AddDirectRole(ctx, ref, roleName)
	if err != nil {
		return err
	}
	if changed {
		s.auditor.Emit(ctx, actor, "user.role_assigned", "user", ref, map[string]any{"role": roleName})
	}
	return nil
}

// RemoveDirectRole detaches a directly assigned role name.
func (s *Service) RemoveDirectRole(ctx context.Context, actor, ref, roleName string) error {
	changed, err := s.repo.RemoveDirectRole(ctx, ref, roleName)
	if err != nil {
		return err
	}
	if changed {
		s.auditor.Emit(ctx, actor, "user.role_removed", "user", ref, map[string]any{"role": roleName})
	}
	return nil
}

// Purge deletes a user and removes its reference from every group member set.
func (s *Service) Purge(ctx context.Context, actor, ref string) error {
	if err := s.repo.Purge(ctx, ref); err != nil {
		return err
	}
	s.auditor.Emit(ctx, actor, "user.purged", "user", ref, nil)
	return nil
}

// ChangePassword replaces the stored hash after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, ref, current, next string) error {
	user, err := s.repo.GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return shared.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, ref, string(hash), false); err != nil {
		return err
	}
	s.auditor.Emit(ctx, ref, "user.password_changed", "user", ref, nil)
	return nil
}
