// Package auth issues and revokes session credentials. A credential carries a
// point-in-time access snapshot; request-time checks read the snapshot and
// never re-resolve.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/opsrelay/opsrelay/internal/audit"
	"github.com/opsrelay/opsrelay/internal/roles"
	"github.com/opsrelay/opsrelay/internal/shared"
	"github.com/opsrelay/opsrelay/internal/users"
)

// Resolver produces the access snapshot embedded at issuance.
type Resolver interface {
	Snapshot(ctx context.Context, userRef string) (shared.AccessClaims, error)
}

// Service authenticates users and produces session claims.
type Service struct {
	users    *users.Service
	resolver Resolver
	auditor  *audit.Emitter
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(users *users.Service, resolver Resolver, auditor *audit.Emitter, logger *slog.Logger) *Service {
	return &Service{users: users, resolver: resolver, auditor: auditor, logger: logger}
}

// Login verifies the credentials and returns the user plus a fresh access
// snapshot. Unknown emails, wrong passwords and deactivated accounts all
// collapse into ErrInvalidCredentials so the response does not reveal which
// check failed.
func (s *Service) Login(ctx context.Context, email, password string) (users.User, shared.AccessClaims, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return users.User{}, shared.AccessClaims{}, shared.ErrInvalidCredentials
		}
		return users.User{}, shared.AccessClaims{}, err
	}
	if !user.IsActive {
		return users.User{}, shared.AccessClaims{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.AccessClaims{}, shared.ErrInvalidCredentials
	}

	claims, err := s.resolver.Snapshot(ctx, user.UserRef)
	if err != nil {
		return users.User{}, shared.AccessClaims{}, err
	}
	claims.IssuedAt = time.Now().UTC()

	s.auditor.Emit(ctx, user.UserRef, "auth.login", "user", user.UserRef, nil)
	return user, claims, nil
}

// Reissue builds a fresh snapshot for an already authenticated user, used
// after a password change or an explicit refresh.
func (s *Service) Reissue(ctx context.Context, userRef string) (shared.AccessClaims, error) {
	claims, err := s.resolver.Snapshot(ctx, userRef)
	if err != nil {
		return shared.AccessClaims{}, err
	}
	claims.IssuedAt = time.Now().UTC()
	return claims, nil
}

// BootstrapParams configures the initial administrator account.
type BootstrapParams struct {
	UserRef  string
	Email    string
	Name     string
	Password string
}

// Bootstrap seeds the initial administrator if no account with the configured
// email exists yet. The account gets the unrestricted system role and must
// change its password on first login. Safe to run on every startup.
func (s *Service) Bootstrap(ctx context.Context, params BootstrapParams) error {
	_, err := s.users.GetByEmail(ctx, params.Email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	user, err := s.users.Create(ctx, "system", users.CreateParams{
		UserRef:         params.UserRef,
		Email:           params.Email,
		Name:            params.Name,
		Password:        params.Password,
		DirectRoleNames: []string{roles.NameSystemAdmin},
	})
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			// Another replica won the race.
			return nil
		}
		return err
	}
	if s.logger != nil {
		s.logger.Info("bootstrapped administrator account", slog.String("user_ref", user.UserRef))
	}
	return nil
}
