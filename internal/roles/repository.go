package roles

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inms/inms/internal/platform/db"
	"github.com/inms/inms/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	List(ctx context.Context) ([]Role, error)
	FindByID(ctx context.Context, id int64) (*Role, error)
	FindBySlug(ctx context.Context, slug string) (*Role, error)
	Create(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id int64) error
	RolePermissions(ctx context.Context, slug string) ([]string, error)
}

// Repository provides PostgreSQL backed persistence. Permissions are
// stored as a JSONB array on the roles row; the authorization registry
// reads them through RolePermissions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `r.id, r.name, r.slug, r.description, r.permissions,
(SELECT COUNT(*) FROM users u WHERE u.role = r.slug AND u.deleted_at IS NULL), r.created_at, r.updated_at`

// List returns all roles with their user counts.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles r ORDER BY r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FindByID returns a single role.
func (r *Repository) FindByID(ctx context.Context, id int64) (*Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id=$1`, id)
	return mapScan(scanRole(row))
}

// FindBySlug returns the role stored under slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.slug=$1`, slug)
	return mapScan(scanRole(row))
}

// Create inserts a role and fills in the generated ID.
func (r *Repository) Create(ctx context.Context, role *Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, `INSERT INTO roles (name, slug, description, permissions, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		role.Name, role.Slug, role.Description, perms,
	).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	return mapUniqueViolation(err)
}

// Update rewrites a role's mutable columns. The slug stays fixed.
func (r *Repository) Update(ctx context.Context, role *Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET name=$2, description=$3, permissions=$4, updated_at=NOW() WHERE id=$1`,
		role.ID, role.Name, role.Description, perms)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a role row. The in-use count is rechecked inside the
// transaction so a concurrent role assignment cannot orphan a user.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var inUse int
		err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM users u
JOIN roles r ON r.slug = u.role WHERE r.id=$1 AND u.deleted_at IS NULL`, id).Scan(&inUse)
		if err != nil {
			return err
		}
		if inUse > 0 {
			return ErrRoleInUse
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// RolePermissions returns the permission keys stored for slug. It
// satisfies the authorization registry's role source; shared.ErrNotFound
// tells the registry to fall back to the built-in defaults.
func (r *Repository) RolePermissions(ctx context.Context, slug string) ([]string, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT permissions FROM roles WHERE slug=$1`, slug).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	var raw []byte
	if err := row.Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &raw, &role.UsersCount, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &role.Permissions); err != nil {
		return nil, err
	}
	return &role, nil
}

func mapScan(role *Role, err error) (*Role, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return role, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateSlug
	}
	return err
}
