// Package access computes effective roles and permissions. It never mutates
// the underlying collections; resolution is read-only and tolerant of
// dangling references left by concurrent deletes.
package access

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/opsrelay/opsrelay/internal/groups"
	"github.com/opsrelay/opsrelay/internal/permissions"
	"github.com/opsrelay/opsrelay/internal/roles"
	"github.com/opsrelay/opsrelay/internal/shared"
	"github.com/opsrelay/opsrelay/internal/users"
)

// UserSource is the slice of the user collection resolution reads.
type UserSource interface {
	GetByRef(ctx context.Context, ref string) (users.User, error)
	List(ctx context.Context) ([]users.User, error)
}

// GroupSource is the slice of the group collection resolution reads.
type GroupSource interface {
	Get(ctx context.Context, id int64) (groups.Group, error)
	List(ctx context.Context) ([]groups.Group, error)
}

// RoleSource resolves role names to role records.
type RoleSource interface {
	ResolveNames(ctx context.Context, names []string) []roles.Role
	ListAll(ctx context.Context) ([]roles.Role, error)
}

// Resolver computes effective role and permission sets for a user.
type Resolver struct {
	users  UserSource
	groups GroupSource
	roles  RoleSource
	logger *slog.Logger
}

// NewResolver builds Resolver instance.
func NewResolver(users UserSource, groups GroupSource, roles RoleSource, logger *slog.Logger) *Resolver {
	return &Resolver{users: users, groups: groups, roles: roles, logger: logger}
}

// EffectiveRoles returns the sorted union of the user's direct role names and
// the role names of every active group the user belongs to. Group references
// that no longer resolve are skipped; inactive groups contribute nothing.
func (r *Resolver) EffectiveRoles(ctx context.Context, userRef string) ([]string, error) {
	user, err := r.users.GetByRef(ctx, userRef)
	if err != nil {
		return nil, err
	}
	return r.effectiveRolesOf(ctx, user), nil
}

func (r *Resolver) effectiveRolesOf(ctx context.Context, user users.User) []string {
	names := make(map[string]struct{})
	for _, n := range user.DirectRoleNames {
		names[n] = struct{}{}
	}
	for _, id := range user.GroupRefs {
		group, err := r.groups.Get(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				if r.logger != nil {
					r.logger.Warn("user references missing group",
						slog.String("user_ref", user.UserRef),
						slog.Int64("group_id", id))
				}
				continue
			}
			if r.logger != nil {
				r.logger.Warn("group lookup degraded during resolution",
					slog.Int64("group_id", id),
					slog.Any("error", err))
			}
			continue
		}
		if !group.Active {
			continue
		}
		for _, n := range group.RoleNames {
			names[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// EffectivePermissions returns the sorted union of permissions granted by the
// user's effective roles. Role names without a matching role contribute
// nothing. If any effective role is unrestricted the result is the entire
// catalog, including permissions added after the role was stored.
func (r *Resolver) EffectivePermissions(ctx context.Context, userRef string) ([]string, error) {
	effective, err := r.EffectiveRoles(ctx, userRef)
	if err != nil {
		return nil, err
	}
	return r.permissionsOf(ctx, effective), nil
}

func (r *Resolver) permissionsOf(ctx context.Context, roleNames []string) []string {
	resolved := r.roles.ResolveNames(ctx, roleNames)
	return permissionUnion(resolved)
}

// Snapshot resolves the user once and packages the result for embedding in a
// session. The snapshot is point-in-time; it goes stale when assignments
// change and is only refreshed on re-issue.
func (r *Resolver) Snapshot(ctx context.Context, userRef string) (shared.AccessClaims, error) {
	user, err := r.users.GetByRef(ctx, userRef)
	if err != nil {
		return shared.AccessClaims{}, err
	}
	effective := r.effectiveRolesOf(ctx, user)
	resolved := r.roles.ResolveNames(ctx, effective)
	claims := shared.AccessClaims{
		Roles:       effective,
		Permissions: permissionUnion(resolved),
	}
	for _, role := range resolved {
		if role.Unrestricted {
			claims.Unrestricted = true
			break
		}
	}
	return claims, nil
}

// permissionUnion computes the sorted union of the roles' permission sets.
// An unrestricted role widens the result to the full catalog.
func permissionUnion(resolved []roles.Role) []string {
	for _, role := range resolved {
		if role.Unrestricted {
			return permissions.All()
		}
	}
	union := make(map[string]struct{})
	for _, role := range resolved {
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
