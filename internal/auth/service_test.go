package auth

import (
	"context"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/opsrelay/opsrelay/internal/roles"
	"github.com/opsrelay/opsrelay/internal/shared"
	"github.com/opsrelay/opsrelay/internal/users"
)

type memoryUserRepo struct {
	byRef map[string]users.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{byRef: make(map[string]users.User)}
}

func (r *memoryUserRepo) Insert(ctx context.Context, user users.User) (users.User, error) {
	for _, u := range r.byRef {
		if u.Email == user.Email || u.UserRef == user.UserRef {
			return users.User{}, shared.ErrConflict
		}
	}
	user.ID = int64(len(r.byRef) + 1)
	r.byRef[user.UserRef] = user
	return user, nil
}

func (r *memoryUserRepo) GetByRef(ctx context.Context, ref string) (users.User, error) {
	user, ok := r.byRef[ref]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) GetByEmail(ctx context.Context, email string) (users.User, error) {
	for _, user := range r.byRef {
		if user.Email == email {
			return user, nil
		}
	}
	return users.User{}, shared.ErrNotFound
}

func (r *memoryUserRepo) List(ctx context.Context) ([]users.User, error) {
	out := make([]users.User, 0, len(r.byRef))
	for _, user := range r.byRef {
		out = append(out, user)
	}
	return out, nil
}

func (r *memoryUserRepo) SetActive(ctx context.Context, ref string, active bool) error {
	user, ok := r.byRef[ref]
	if !ok {
		return shared.ErrNotFound
	}
	user.IsActive = active
	r.byRef[ref] = user
	return nil
}

func (r *memoryUserRepo) UpdatePassword(ctx context.Context, ref, passwordHash string, changeRequired bool) error {
	user, ok := r.byRef[ref]
	if !ok {
		return shared.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.ChangePasswordRequired = changeRequired
	r.byRef[ref] = user
	return nil
}

func (r *memoryUserRepo) AddDirectRole(ctx context.Context, ref, roleName string) (bool, error) {
	user, ok := r.byRef[ref]
	if !ok {
		return false, shared.ErrNotFound
	}
	if slices.Contains(user.DirectRoleNames, roleName) {
		return false, nil
	}
	user.DirectRoleNames = append(user.DirectRoleNames, roleName)
	r.byRef[ref] = user
	return true, nil
}

func (r *memoryUserRepo) RemoveDirectRole(ctx context.Context, ref, roleName string) (bool, error) {
	user, ok := r.byRef[ref]
	if !ok {
		return false, shared.ErrNotFound
	}
	before := len(user.DirectRoleNames)
	user.DirectRoleNames = slices.DeleteFunc(user.DirectRoleNames, func(n string) bool { return n == roleName })
	r.byRef[ref] = user
	return len(user.DirectRoleNames) != before, nil
}

func (r *memoryUserRepo) Purge(ctx context.Context, ref string) error {
	if _, ok := r.byRef[ref]; !ok {
		return shared.ErrNotFound
	}
	delete(r.byRef, ref)
	return nil
}

var _ users.RepositoryPort = (*memoryUserRepo)(nil)

type stubResolver struct {
	claims shared.AccessClaims
}

func (s *stubResolver) Snapshot(ctx context.Context, userRef string) (shared.AccessClaims, error) {
	return s.claims, nil
}

func newTestAuth(repo *memoryUserRepo, claims shared.AccessClaims) *Service {
	userSvc := users.NewService(repo, nil, slog.Default())
	return NewService(userSvc, &stubResolver{claims: claims}, nil, slog.Default())
}

func seedUser(t *testing.T, repo *memoryUserRepo, ref, email, password string, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = repo.Insert(context.Background(), users.User{
		UserRef:      ref,
		Email:        email,
		Name:         ref,
		PasswordHash: string(hash),
		IsActive:     active,
	})
	require.NoError(t, err)
}

func TestLoginEmbedsSnapshot(t *testing.T) {
	repo := newMemoryUserRepo()
	seedUser(t, repo, "alice", "alice@example.com", "s3cretpass", true)
	svc := newTestAuth(repo, shared.AccessClaims{Roles: []string{"VIEWER"}, Permissions: []string{"incident.view"}})

	user, claims, err := svc.Login(context.Background(), "alice@example.com", "s3cretpass")
	require.NoError(t, err)
	require.Equal(t, "alice", user.UserRef)
	require.Equal(t, []string{"VIEWER"}, claims.Roles)
	require.Equal(t, []string{"incident.view"}, claims.Permissions)
	require.False(t, claims.IssuedAt.IsZero())
}

func TestLoginFailuresCollapseToInvalidCredentials(t *testing.T) {
	repo := newMemoryUserRepo()
	seedUser(t, repo, "alice", "alice@example.com", "s3cretpass", true)
	seedUser(t, repo, "bob", "bob@example.com", "s3cretpass", false)
	svc := newTestAuth(repo, shared.AccessClaims{})

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "ghost@example.com", "s3cretpass"},
		{"wrong password", "alice@example.com", "wrong"},
		{"inactive account", "bob@example.com", "s3cretpass"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Login(context.Background(), tc.email, tc.password)
			require.ErrorIs(t, err, shared.ErrInvalidCredentials)
		})
	}
}

func TestBootstrapSeedsOnce(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestAuth(repo, shared.AccessClaims{})

	params := BootstrapParams{UserRef: "admin", Email: "admin@example.com", Name: "Administrator", Password: "changeme1"}
	require.NoError(t, svc.Bootstrap(context.Background(), params))
	require.NoError(t, svc.Bootstrap(context.Background(), params))

	admin, err := repo.GetByRef(context.Background(), "admin")
	require.NoError(t, err)
	require.Equal(t, []string{roles.NameSystemAdmin}, admin.DirectRoleNames)
	require.True(t, admin.ChangePasswordRequired)
	require.Len(t, repo.byRef, 1)
}
