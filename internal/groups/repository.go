package groups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsrelay/opsrelay/internal/platform/db"
	"github.com/opsrelay/opsrelay/internal/shared"
)

const groupColumns = `id, name, description, member_user_refs, role_names, active, created_at, updated_at`

// RepositoryPort defines data access methods for groups.
type RepositoryPort interface {
	Insert(ctx context.Context, group Group) (Group, error)
	Get(ctx context.Context, id int64) (Group, error)
	GetByName(ctx context.Context, name string) (Group, error)
	List(ctx context.Context) ([]Group, error)
	Update(ctx context.Context, id int64, patch UpdateParams) (Group, error)
	DeleteWithMemberCleanup(ctx context.Context, id int64) (Group, error)
	AddMemberRef(ctx context.Context, id int64, userRef string) (bool, error)
	RemoveMemberRef(ctx context.Context, id int64, userRef string) (bool, error)
	AddRoleName(ctx context.Context, id int64, roleName string) (bool, error)
	RemoveRoleName(ctx context.Context, id int64, roleName string) (bool, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates a new group, failing on duplicate names.
func (r *Repository) Insert(ctx context.Context, group Group) (Group, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO groups (name, description, member_user_refs, role_names, active)
		VALUES ($1, $2, '{}', $3, $4) RETURNING `+groupColumns,
		group.Name, group.Description, group.RoleNames, group.Active)
	created, err := scanGroup(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Group{}, shared.ErrConflict
		}
		return Group{}, err
	}
	return created, nil
}

// Get fetches a group by id.
func (r *Repository) Get(ctx context.Context, id int64) (Group, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id)
	group, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, err
	}
	return group, nil
}

// GetByName fetches a group by unique name.
func (r *Repository) GetByName(ctx context.Context, name string) (Group, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE name = $1`, name)
	group, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, err
	}
	return group, nil
}

// List returns all groups.
func (r *Repository) List(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies a partial update to the group record.
func (r *Repository) Update(ctx context.Context, id int64, patch UpdateParams) (Group, error) {
	row := r.pool.QueryRow(ctx, `UPDATE groups SET description = COALESCE($2, description), active = COALESCE($3, active), updated_at = NOW() WHERE id = $1 RETURNING `+groupColumns,
		id, patch.Description, patch.Active)
	group, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, err
	}
	return group, nil
}

// DeleteWithMemberCleanup removes the group record and strips the group id
// from every referencing user's group set inside one transaction. Returns
// the deleted group.
func (r *Repository) DeleteWithMemberCleanup(ctx context.Context, id int64) (Group, error) {
	var deleted Group
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `DELETE FROM groups WHERE id = $1 RETURNING `+groupColumns, id)
		group, err := scanGroup(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET group_refs = array_remove(group_refs, $1), updated_at = NOW() WHERE $1 = ANY(group_refs)`, id); err != nil {
			return err
		}
		deleted = group
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	return deleted, nil
}

// AddMemberRef appends a user reference to the member set if absent.
func (r *Repository) AddMemberRef(ctx context.Context, id int64, userRef string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE groups SET member_user_refs = array_append(member_user_refs, $2), updated_at = NOW() WHERE id = $1 AND NOT ($2 = ANY(member_user_refs))`, id, userRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveMemberRef removes a user reference from the member set.
func (r *Repository) RemoveMemberRef(ctx context.Context, id int64, userRef string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE groups SET member_user_refs = array_remove(member_user_refs, $2), updated_at = NOW() WHERE id = $1 AND $2 = ANY(member_user_refs)`, id, userRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AddRoleName assigns a role name to the group if absent.
func (r *Repository) AddRoleName(ctx context.Context, id int64, roleName string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE groups SET role_names = array_append(role_names, $2), updated_at = NOW() WHERE id = $1 AND NOT ($2 = ANY(role_names))`, id, roleName)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveRoleName removes a role name from the group.
func (r *Repository) RemoveRoleName(ctx context.Context, id int64, roleName string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE groups SET role_names = array_remove(role_names, $2), updated_at = NOW() WHERE id = $1 AND $2 = ANY(role_names)`, id, roleName)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanGroup(row pgx.Row) (Group, error) {
	var group Group
	err := row.Scan(&group.ID, &group.Name, &group.Description, &group.MemberUserRefs, &group.RoleNames, &group.Active, &group.CreatedAt, &group.UpdatedAt)
	return group, err
}

var _ RepositoryPort = (*Repository)(nil)
