package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsrelay/opsrelay/internal/shared"
)

const roleColumns = `id, name, description, kind, unrestricted, permissions, parent_roles, created_at, updated_at`

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	InsertIfAbsent(ctx context.Context, role Role) (bool, error)
	Insert(ctx context.Context, role Role) (Role, error)
	GetByName(ctx context.Context, name string) (Role, error)
	GetByNames(ctx context.Context, names []string) ([]Role, error)
	List(ctx context.Context) ([]Role, error)
	UpdatePermissions(ctx context.Context, name string, permissions []string) (Role, error)
	Delete(ctx context.Context, name string) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertIfAbsent creates the role unless one with the same name exists.
// Returns true when a row was inserted.
func (r *Repository) InsertIfAbsent(ctx context.Context, role Role) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO roles (name, description, kind, unrestricted, permissions, parent_roles)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (name) DO NOTHING`,
		role.Name, role.Description, role.Kind, role.Unrestricted, role.Permissions, role.ParentRoles)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Insert creates a new role, failing on duplicate names.
func (r *Repository) Insert(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO roles (name, description, kind, unrestricted, permissions, parent_roles)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+roleColumns,
		role.Name, role.Description, role.Kind, role.Unrestricted, role.Permissions, role.ParentRoles)
	created, err := scanRole(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Role{}, shared.ErrConflict
		}
		return Role{}, err
	}
	return created, nil
}

// GetByName fetches a role by unique name.
func (r *Repository) GetByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetByNames fetches every role whose name appears in names. Missing names
// are simply absent from the result.
func (r *Repository) GetByNames(ctx context.Context, names []string) ([]Role, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// List returns all roles.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// UpdatePermissions replaces the role's permission set.
func (r *Repository) UpdatePermissions(ctx context.Context, name string, permissions []string) (Role, error) {
	row := r.pool.QueryRow(ctx, `UPDATE roles SET permissions = $2, updated_at = NOW() WHERE name = $1 RETURNING `+roleColumns, name, permissions)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// Delete removes a role by name. Group and user references are not cascaded;
// they dangle and resolve to zero permissions.
func (r *Repository) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Kind, &role.Unrestricted, &role.Permissions, &role.ParentRoles, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

var _ RepositoryPort = (*Repository)(nil)
