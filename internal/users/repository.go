package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsrelay/opsrelay/internal/platform/db"
	"github.com/opsrelay/opsrelay/internal/shared"
)

const userColumns = `id, user_ref, email, name, password_hash, is_active, change_password_required, direct_role_names, group_refs, created_at, updated_at`

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Insert(ctx context.Context, user User) (User, error)
	GetByRef(ctx context.Context, ref string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	SetActive(ctx context.Context, ref string, active bool) error
	UpdatePassword(ctx context.Context, ref, passwordHash string, changeRequired bool) error
	AddDirectRole(ctx context.Context, ref, roleName string) (bool, error)
	RemoveDirectRole(ctx context.Context, ref, roleName string) (bool, error)
	Purge(ctx context.Context, ref string) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates a new user record.
func (r *Repository) Insert(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (user_ref, email, name, password_hash, is_active, change_password_required, direct_role_names, group_refs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '{}') RETURNING `+userColumns,
		user.UserRef, user.Email, user.Name, user.PasswordHash, user.IsActive, user.ChangePasswordRequired, user.DirectRoleNames)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, shared.ErrConflict
		}
		return User{}, err
	}
	return created, nil
}

// GetByRef fetches a user by the stable user reference.
func (r *Repository) GetByRef(ctx context.Context, ref string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_ref = $1`, ref)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// GetByEmail fetches a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// List returns all users.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// SetActive toggles the active flag.
func (r *Repository) SetActive(ctx context.Context, ref string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE user_ref = $1`, ref, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *Repository) UpdatePassword(ctx context.Context, ref, passwordHash string, changeRequired bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, change_password_required = $3, updated_at = NOW() WHERE user_ref = $1`, ref, passwordHash, changeRequired)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddDirectRole appends a direct role name if absent. Returns true when the
// record changed.
func (r *Repository) AddDirectRole(ctx context.Context, ref, roleName string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET direct_role_names = array_append(direct_role_names, $2), updated_at = NOW() WHERE user_ref = $1 AND NOT ($2 = ANY(direct_role_names))`, ref, roleName)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveDirectRole removes a direct role name if present.
func (r *Repository) RemoveDirectRole(ctx context.Context, ref, roleName string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET direct_role_names = array_remove(direct_role_names, $2), updated_at = NOW() WHERE user_ref = $1 AND $2 = ANY(direct_role_names)`, ref, roleName)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Purge deletes the user record and strips the reference from every group's
// member set, inside one transaction. This is the cleanup contract invoked
// when a user is deleted outside the engine.
func (r *Repository) Purge(ctx context.Context, ref string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE groups SET member_user_refs = array_remove(member_user_refs, $1), updated_at = NOW() WHERE $1 = ANY(member_user_refs)`, ref); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE user_ref = $1`, ref)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// ExistsByRef reports whether a user with the reference exists.
func (r *Repository) ExistsByRef(ctx context.Context, ref string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_ref = $1)`, ref).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// AddGroupRef appends a group id to the user's group reference set if absent.
func (r *Repository) AddGroupRef(ctx context.Context, ref string, groupID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET group_refs = array_append(group_refs, $2), updated_at = NOW() WHERE user_ref = $1 AND NOT ($2 = ANY(group_refs))`, ref, groupID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListGroupRefs returns every user's group reference set keyed by user
// reference. Used by the membership reconciliation pass.
func (r *Repository) ListGroupRefs(ctx context.Context) (map[string][]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_ref, group_refs FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]int64)
	for rows.Next() {
		var ref string
		var groupRefs []int64
		if err := rows.Scan(&ref, &groupRefs); err != nil {
			return nil, err
		}
		out[ref] = groupRefs
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveGroupRef removes a group id from the user's group reference set.
func (r *Repository) RemoveGroupRef(ctx context.Context, ref string, groupID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET group_refs = array_remove(group_refs, $2), updated_at = NOW() WHERE user_ref = $1 AND $2 = ANY(group_refs)`, ref, groupID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.UserRef, &user.Email, &user.Name, &user.PasswordHash, &user.IsActive, &user.ChangePasswordRequired, &user.DirectRoleNames, &user.GroupRefs, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ RepositoryPort = (*Repository)(nil)
