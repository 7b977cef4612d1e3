package access

import (
	"context"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsrelay/opsrelay/internal/groups"
	"github.com/opsrelay/opsrelay/internal/permissions"
	"github.com/opsrelay/opsrelay/internal/roles"
	"github.com/opsrelay/opsrelay/internal/shared"
	"github.com/opsrelay/opsrelay/internal/users"
)

type memoryRoleRepo struct {
	byName map[string]roles.Role
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{byName: make(map[string]roles.Role)}
}

func (r *memoryRoleRepo) InsertIfAbsent(ctx context.Context, role roles.Role) (bool, error) {
	if _, ok := r.byName[role.Name]; ok {
		return false, nil
	}
	r.byName[role.Name] = role
	return true, nil
}

func (r *memoryRoleRepo) Insert(ctx context.Context, role roles.Role) (roles.Role, error) {
	if _, ok := r.byName[role.Name]; ok {
		return roles.Role{}, shared.ErrConflict
	}
	r.byName[role.Name] = role
	return role, nil
}

func (r *memoryRoleRepo) GetByName(ctx context.Context, name string) (roles.Role, error) {
	role, ok := r.byName[name]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRoleRepo) GetByNames(ctx context.Context, names []string) ([]roles.Role, error) {
	var out []roles.Role
	for _, n := range names {
		if role, ok := r.byName[n]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRoleRepo) List(ctx context.Context) ([]roles.Role, error) {
	out := make([]roles.Role, 0, len(r.byName))
	for _, role := range r.byName {
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryRoleRepo) UpdatePermissions(ctx context.Context, name string, perms []string) (roles.Role, error) {
	role, ok := r.byName[name]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	role.Permissions = perms
	r.byName[name] = role
	return role, nil
}

func (r *memoryRoleRepo) Delete(ctx context.Context, name string) error {
	if _, ok := r.byName[name]; !ok {
		return shared.ErrNotFound
	}
	delete(r.byName, name)
	return nil
}

var _ roles.RepositoryPort = (*memoryRoleRepo)(nil)

// Deleting a custom role that a group still references must not fail, and the
// members' effective permissions shrink on the next resolution while the
// dangling role name stays on the group.
func TestCustomRoleDeletionShrinksEffectivePermissions(t *testing.T) {
	ctx := context.Background()

	roleService := roles.NewService(newMemoryRoleRepo(), nil, slog.Default())
	require.NoError(t, roleService.EnsureSystemRole(ctx, "VIEWER", "", []string{permissions.IncidentView}, false))
	_, err := roleService.CreateCustom(ctx, "admin", "ONCALL_TOOLS", "",
		[]string{permissions.IncidentAssign, permissions.IncidentUpdate})
	require.NoError(t, err)

	userSrc := &stubUsers{byRef: map[string]users.User{
		"dave": {UserRef: "dave", IsActive: true, DirectRoleNames: []string{"VIEWER"}, GroupRefs: []int64{7}},
	}}
	groupSrc := &stubGroups{byID: map[int64]groups.Group{
		7: {ID: 7, Name: "oncall", Active: true, MemberUserRefs: []string{"dave"}, RoleNames: []string{"ONCALL_TOOLS"}},
	}}
	resolver := NewResolver(userSrc, groupSrc, roleService, slog.Default())

	before, err := resolver.EffectivePermissions(ctx, "dave")
	require.NoError(t, err)
	require.Equal(t, []string{
		permissions.IncidentAssign,
		permissions.IncidentUpdate,
		permissions.IncidentView,
	}, before)

	require.NoError(t, roleService.Delete(ctx, "admin", "ONCALL_TOOLS"))

	after, err := resolver.EffectivePermissions(ctx, "dave")
	require.NoError(t, err)
	require.Equal(t, []string{permissions.IncidentView}, after)

	// The group still names the deleted role; it just grants nothing now.
	effective, err := resolver.EffectiveRoles(ctx, "dave")
	require.NoError(t, err)
	require.True(t, slices.Contains(effective, "ONCALL_TOOLS"))
}
