package groups

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsrelay/opsrelay/internal/shared"
)

func newTestService(repo *memoryGroupRepo, dir *memoryDirectory) *Service {
	sync := NewSynchronizer(repo, dir, slog.Default())
	return NewService(repo, sync, nil, slog.Default())
}

func TestCreateGroupLinksInitialMembers(t *testing.T) {
	repo := newMemoryGroupRepo()
	dir := newMemoryDirectory("alice", "bob")
	svc := newTestService(repo, dir)

	group, err := svc.Create(context.Background(), "tester", CreateParams{
		Name:           "oncall",
		MemberUserRefs: []string{"alice", "bob"},
		RoleNames:      []string{"RESPONDER", "RESPONDER"},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, group.MemberUserRefs)
	require.Equal(t, []string{"RESPONDER"}, group.RoleNames)
	require.Equal(t, []int64{group.ID}, dir.refs["alice"])
	require.True(t, group.Active)
}

func TestCreateGroupSkipsUnknownMembers(t *testing.T) {
	repo := newMemoryGroupRepo()
	dir := newMemoryDirectory("alice")
	svc := newTestService(repo, dir)

	group, err := svc.Create(context.Background(), "tester", CreateParams{
		Name:           "oncall",
		MemberUserRefs: []string{"alice", "ghost"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, group.MemberUserRefs)
}

func TestCreateGroupDuplicateName(t *testing.T) {
	repo := newMemoryGroupRepo()
	svc := newTestService(repo, newMemoryDirectory())

	_, err := svc.Create(context.Background(), "tester", CreateParams{Name: "oncall"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "tester", CreateParams{Name: "oncall"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateGroupEmptyName(t *testing.T) {
	svc := newTestService(newMemoryGroupRepo(), newMemoryDirectory())

	_, err := svc.Create(context.Background(), "tester", CreateParams{Name: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteGroupStripsBackReferences(t *testing.T) {
	repo := newMemoryGroupRepo()
	dir := newMemoryDirectory("alice")
	svc := newTestService(repo, dir)

	group, err := svc.Create(context.Background(), "tester", CreateParams{
		Name:           "oncall",
		MemberUserRefs: []string{"alice"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "tester", group.ID))
	_, err = svc.Get(context.Background(), group.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	// The in-memory repo does not cascade like the SQL implementation, so the
	// dangling back-reference must be healed by reconciliation.
	repaired, err := svc.Reconcile(context.Background(), "tester")
	require.NoError(t, err)
	require.Equal(t, 1, repaired)
	require.Empty(t, dir.refs["alice"])
}

func TestAssignRoleToleratesDanglingName(t *testing.T) {
	repo := newMemoryGroupRepo()
	svc := newTestService(repo, newMemoryDirectory())

	group, err := svc.Create(context.Background(), "tester", CreateParams{Name: "oncall"})
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(context.Background(), "tester", group.ID, "not-a-role-yet"))
	stored, _ := svc.Get(context.Background(), group.ID)
	require.Equal(t, []string{"not-a-role-yet"}, stored.RoleNames)
}

func TestAssignRoleUnknownGroup(t *testing.T) {
	svc := newTestService(newMemoryGroupRepo(), newMemoryDirectory())

	err := svc.AssignRole(context.Background(), "tester", 404, "RESPONDER")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemoveRoleAbsentIsNoop(t *testing.T) {
	repo := newMemoryGroupRepo()
	svc := newTestService(repo, newMemoryDirectory())

	group, err := svc.Create(context.Background(), "tester", CreateParams{Name: "oncall"})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveRole(context.Background(), "tester", group.ID, "RESPONDER"))
}

func TestUpdateGroupPatch(t *testing.T) {
	repo := newMemoryGroupRepo()
	svc := newTestService(repo, newMemoryDirectory())

	group, err := svc.Create(context.Background(), "tester", CreateParams{Name: "oncall"})
	require.NoError(t, err)

	inactive := false
	updated, err := svc.Update(context.Background(), "tester", group.ID, UpdateParams{Active: &inactive})
	require.NoError(t, err)
	require.False(t, updated.Active)
	require.Equal(t, group.Name, updated.Name)
}
