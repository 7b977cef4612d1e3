package roles

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsrelay/opsrelay/internal/permissions"
	"github.com/opsrelay/opsrelay/internal/shared"
)

type memoryRoleRepo struct {
	roles  map[string]Role
	nextID int64
	fail   bool
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{roles: make(map[string]Role)}
}

func (r *memoryRoleRepo) InsertIfAbsent(ctx context.Context, role Role) (bool, error) {
	if r.fail {
		return false, errors.New("store unavailable")
	}
	if _, ok := r.roles[role.Name]; ok {
		return false, nil
	}
	r.nextID++
	role.ID = r.nextID
	r.roles[role.Name] = role
	return true, nil
}

func (r *memoryRoleRepo) Insert(ctx context.Context, role Role) (Role, error) {
	if r.fail {
		return Role{}, errors.New("store unavailable")
	}
	if _, ok := r.roles[role.Name]; ok {
		return Role{}, shared.ErrConflict
	}
	r.nextID++
	role.ID = r.nextID
	r.roles[role.Name] = role
	return role, nil
}

func (r *memoryRoleRepo) GetByName(ctx context.Context, name string) (Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRoleRepo) GetByNames(ctx context.Context, names []string) ([]Role, error) {
	if r.fail {
		return nil, errors.New("store unavailable")
	}
	var out []Role
	for _, n := range names {
		if role, ok := r.roles[n]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRoleRepo) List(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryRoleRepo) UpdatePermissions(ctx context.Context, name string, perms []string) (Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	role.Permissions = perms
	r.roles[name] = role
	return role, nil
}

func (r *memoryRoleRepo) Delete(ctx context.Context, name string) error {
	if _, ok := r.roles[name]; !ok {
		return shared.ErrNotFound
	}
	delete(r.roles, name)
	return nil
}

var _ RepositoryPort = (*memoryRoleRepo)(nil)

func newTestService(repo RepositoryPort) *Service {
	return NewService(repo, nil, slog.Default())
}

func TestSeedSystemRolesIsIdempotent(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := newTestService(repo)

	require.NoError(t, svc.SeedSystemRoles(context.Background()))
	require.Len(t, repo.roles, 5)

	// Operator customizes VIEWER; a restart must not clobber the change.
	viewer := repo.roles[NameViewer]
	viewer.Permissions = []string{permissions.IncidentView}
	repo.roles[NameViewer] = viewer

	require.NoError(t, svc.SeedSystemRoles(context.Background()))
	require.Equal(t, []string{permissions.IncidentView}, repo.roles[NameViewer].Permissions)
}

func TestSeedMarksSystemAdminUnrestricted(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := newTestService(repo)
	require.NoError(t, svc.SeedSystemRoles(context.Background()))

	require.True(t, repo.roles[NameSystemAdmin].Unrestricted)
	require.False(t, repo.roles[NameAdmin].Unrestricted)
	for _, name := range []string{NameViewer, NameResponder, NameManager, NameAdmin, NameSystemAdmin} {
		require.Equal(t, KindSystem, repo.roles[name].Kind)
	}
}

func TestDeleteSystemRoleForbidden(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := newTestService(repo)
	require.NoError(t, svc.SeedSystemRoles(context.Background()))

	err := svc.Delete(context.Background(), "tester", NameAdmin)
	require.ErrorIs(t, err, shared.ErrForbiddenOperation)
	require.Contains(t, repo.roles, NameAdmin)
}

func TestDeleteCustomRole(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := newTestService(repo)

	_, err := svc.CreateCustom(context.Background(), "tester", "triage", "", []string{permissions.IncidentView})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), "tester", "triage"))
	require.NotContains(t, repo.roles, "triage")
}

func TestCreateCustomRejectsUnknownPermission(t *testing.T) {
	svc := newTestService(newMemoryRoleRepo())

	_, err := svc.CreateCustom(context.Background(), "tester", "triage", "", []string{"incident.fly"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateCustomDuplicateName(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := newTestService(repo)

	_, err := svc.CreateCustom(context.Background(), "tester", "triage", "", nil)
	require.NoError(t, err)
	_, err = svc.CreateCustom(context.Background(), "tester", "triage", "", nil)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestPermissionsForSkipsUnresolvableNames(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := newTestService(repo)

	_, err := svc.CreateCustom(context.Background(), "tester", "triage", "", []string{permissions.IncidentView, permissions.IncidentUpdate})
	require.NoError(t, err)

	perms := svc.PermissionsFor(context.Background(), []string{"triage", "ghost-role"})
	require.Equal(t, []string{permissions.IncidentUpdate, permissions.IncidentView}, perms)
}

func TestPermissionsForDegradesOnStoreFailure(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := newTestService(repo)
	repo.fail = true

	perms := svc.PermissionsFor(context.Background(), []string{"anything"})
	require.Empty(t, perms)
}

func TestUpdatePermissionsAllowedOnSystemRole(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := newTestService(repo)
	require.NoError(t, svc.SeedSystemRoles(context.Background()))

	role, err := svc.UpdatePermissions(context.Background(), "tester", NameViewer, []string{permissions.IncidentView, permissions.EvidenceView, permissions.EvidenceDownload})
	require.NoError(t, err)
	require.Len(t, role.Permissions, 3)
}
