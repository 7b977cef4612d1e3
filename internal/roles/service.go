package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/opsrelay/opsrelay/internal/audit"
	"github.com/opsrelay/opsrelay/internal/permissions"
	"github.com/opsrelay/opsrelay/internal/shared"
)

// Service is the role registry. It owns seeding of system roles, lookups used
// by access resolution, and administration of custom roles.
type Service struct {
	repo    RepositoryPort
	auditor *audit.Emitter
	logger  *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, auditor *audit.Emitter, logger *slog.Logger) *Service {
	return &Service{repo: repo, auditor: auditor, logger: logger}
}

// EnsureSystemRole idempotently seeds a system role. Existing roles are left
// untouched, including their permission sets.
func (s *Service) EnsureSystemRole(ctx context.Context, name, description string, perms []string, unrestricted bool) error {
	created, err := s.repo.InsertIfAbsent(ctx, Role{
		Name:         name,
		Description:  description,
		Kind:         KindSystem,
		Unrestricted: unrestricted,
		Permissions:  perms,
	})
	if err != nil {
		return fmt.Errorf("roles: ensure system role %s: %w", name, err)
	}
	if created && s.logger != nil {
		s.logger.Info("seeded system role", slog.String("role", name))
	}
	return nil
}

// GetByName fetches a role by name.
func (s *Service) GetByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetByName(ctx, name)
}

// ListAll returns every registered role.
func (s *Service) ListAll(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// ResolveNames returns the role records for every resolvable name. Names
// without a matching role are skipped; lookup failures degrade to an empty
// result rather than failing the request path, because this feeds access
// resolution.
func (s *Service) ResolveNames(ctx context.Context, names []string) []Role {
	resolved, err := s.repo.GetByNames(ctx, dedupe(names))
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("role lookup degraded", slog.Any("error", err))
		}
		return nil
	}
	return resolved
}

// PermissionsFor returns the sorted union of permission sets for all
// resolvable names. Unresolvable names contribute nothing.
func (s *Service) PermissionsFor(ctx context.Context, names []string) []string {
	union := make(map[string]struct{})
	for _, role := range s.ResolveNames(ctx, names) {
		for _, p := range role.Permissions {
			union[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(union))
	for p := range union {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CreateCustom registers a new custom role.
func (s *Service) CreateCustom(ctx context.Context, actor, name, description string, perms []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	for _, p := range perms {
		if !permissions.Known(p) {
			return Role{}, fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, p)
		}
	}
	role, err := s.repo.Insert(ctx, Role{
		Name:        name,
		Description: strings.TrimSpace(description),
		Kind:        KindCustom,
		Permissions: dedupe(perms),
	})
	if err != nil {
		return Role{}, err
	}
	s.auditor.Emit(ctx, actor, "role.created", "role", role.Name, map[string]any{"kind": role.Kind})
	return role, nil
}

// UpdatePermissions replaces a role's permission set. Permission-set edits
// are the one mutation allowed on SYSTEM roles.
func (s *Service) UpdatePermissions(ctx context.Context, actor, name string, perms []string) (Role, error) {
	for _, p := range perms {
		if !permissions.Known(p) {
			return Role{}, fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, p)
		}
	}
	role, err := s.repo.UpdatePermissions(ctx, name, dedupe(perms))
	if err != nil {
		return Role{}, err
	}
	s.auditor.Emit(ctx, actor, "role.permissions_updated", "role", role.Name, map[string]any{"count": len(role.Permissions)})
	return role, nil
}

// Delete removes a custom role. SYSTEM roles cannot be deleted. Deletion does
// not cascade to group or user references; those dangle and resolve to zero
// permissions.
func (s *Service) Delete(ctx context.Context, actor, name string) error {
	role, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if role.Kind == KindSystem {
		return fmt.Errorf("%w: system role %s cannot be deleted", shared.ErrForbiddenOperation, name)
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	s.auditor.Emit(ctx, actor, "role.deleted", "role", name, nil)
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
