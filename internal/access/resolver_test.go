package access

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsrelay/opsrelay/internal/groups"
	"github.com/opsrelay/opsrelay/internal/permissions"
	"github.com/opsrelay/opsrelay/internal/roles"
	"github.com/opsrelay/opsrelay/internal/shared"
	"github.com/opsrelay/opsrelay/internal/users"
)

type stubUsers struct {
	byRef map[string]users.User
}

func (s *stubUsers) GetByRef(ctx context.Context, ref string) (users.User, error) {
	user, ok := s.byRef[ref]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return user, nil
}

func (s *stubUsers) List(ctx context.Context) ([]users.User, error) {
	out := make([]users.User, 0, len(s.byRef))
	for _, user := range s.byRef {
		out = append(out, user)
	}
	return out, nil
}

type stubGroups struct {
	byID map[int64]groups.Group
}

func (s *stubGroups) Get(ctx context.Context, id int64) (groups.Group, error) {
	group, ok := s.byID[id]
	if !ok {
		return groups.Group{}, shared.ErrNotFound
	}
	return group, nil
}

func (s *stubGroups) List(ctx context.Context) ([]groups.Group, error) {
	out := make([]groups.Group, 0, len(s.byID))
	for _, group := range s.byID {
		out = append(out, group)
	}
	return out, nil
}

type stubRoles struct {
	byName map[string]roles.Role
}

func (s *stubRoles) ResolveNames(ctx context.Context, names []string) []roles.Role {
	var out []roles.Role
	for _, n := range names {
		if role, ok := s.byName[n]; ok {
			out = append(out, role)
		}
	}
	return out
}

func (s *stubRoles) ListAll(ctx context.Context) ([]roles.Role, error) {
	out := make([]roles.Role, 0, len(s.byName))
	for _, role := range s.byName {
		out = append(out, role)
	}
	return out, nil
}

func fixtureResolver() *Resolver {
	userSrc := &stubUsers{byRef: map[string]users.User{
		"alice": {UserRef: "alice", IsActive: true, DirectRoleNames: []string{"VIEWER"}, GroupRefs: []int64{1}},
		"bob":   {UserRef: "bob", IsActive: true, GroupRefs: []int64{1, 2, 99}},
		"root":  {UserRef: "root", IsActive: true, DirectRoleNames: []string{"SYSTEM_ADMIN"}},
		"carol": {UserRef: "carol", IsActive: true, DirectRoleNames: []string{"ghost-role"}},
	}}
	groupSrc := &stubGroups{byID: map[int64]groups.Group{
		1: {ID: 1, Name: "managers", Active: true, MemberUserRefs: []string{"alice", "bob"}, RoleNames: []string{"MANAGER"}},
		2: {ID: 2, Name: "retired", Active: false, MemberUserRefs: []string{"bob"}, RoleNames: []string{"ADMIN"}},
	}}
	roleSrc := &stubRoles{byName: map[string]roles.Role{
		"VIEWER":       {Name: "VIEWER", Permissions: []string{permissions.IncidentView, permissions.EvidenceView}},
		"MANAGER":      {Name: "MANAGER", Permissions: []string{permissions.IncidentView, permissions.IncidentAssign}},
		"ADMIN":        {Name: "ADMIN", Permissions: permissions.All()},
		"SYSTEM_ADMIN": {Name: "SYSTEM_ADMIN", Unrestricted: true},
	}}
	return NewResolver(userSrc, groupSrc, roleSrc, slog.Default())
}

func TestEffectiveRolesUnionsDirectAndGroupRoles(t *testing.T) {
	resolver := fixtureResolver()

	effective, err := resolver.EffectiveRoles(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"MANAGER", "VIEWER"}, effective)
}

func TestEffectiveRolesSkipsDanglingAndInactiveGroups(t *testing.T) {
	resolver := fixtureResolver()

	// bob points at an inactive group and at group 99 which does not exist.
	effective, err := resolver.EffectiveRoles(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, []string{"MANAGER"}, effective)
}

func TestEffectiveRolesUnknownUser(t *testing.T) {
	resolver := fixtureResolver()

	_, err := resolver.EffectiveRoles(context.Background(), "nobody")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEffectivePermissionsSortedUnion(t *testing.T) {
	resolver := fixtureResolver()

	perms, err := resolver.EffectivePermissions(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []string{
		permissions.EvidenceView,
		permissions.IncidentAssign,
		permissions.IncidentView,
	}, perms)
}

func TestEffectivePermissionsDanglingRoleGrantsNothing(t *testing.T) {
	resolver := fixtureResolver()

	perms, err := resolver.EffectivePermissions(context.Background(), "carol")
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestUnrestrictedRoleGrantsFullCatalog(t *testing.T) {
	resolver := fixtureResolver()

	perms, err := resolver.EffectivePermissions(context.Background(), "root")
	require.NoError(t, err)
	require.Equal(t, permissions.All(), perms)
}

func TestSnapshotCarriesUnrestrictedFlag(t *testing.T) {
	resolver := fixtureResolver()

	claims, err := resolver.Snapshot(context.Background(), "root")
	require.NoError(t, err)
	require.True(t, claims.Unrestricted)
	require.Equal(t, []string{"SYSTEM_ADMIN"}, claims.Roles)
	require.Equal(t, permissions.All(), claims.Permissions)

	claims, err = resolver.Snapshot(context.Background(), "alice")
	require.NoError(t, err)
	require.False(t, claims.Unrestricted)
}
