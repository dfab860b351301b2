package articles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inms/inms/internal/authz"
	"github.com/inms/inms/internal/shared"
)

// RepositoryPort defines data access methods for articles.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Article, int, error)
	FindByID(ctx context.Context, id int64) (*Article, error)
	Create(ctx context.Context, article *Article) error
	Update(ctx context.Context, article *Article) error
	UpdateStatus(ctx context.Context, id int64, expected, target authz.Status, publishedAt *time.Time) error
	SoftDelete(ctx context.Context, id int64) error
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const articleColumns = `id, title, slug, excerpt, content, status, user_id, published_at, created_at, updated_at`

// List returns articles matching the filter, newest first, plus the
// total row count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Article, int, error) {
	conds := []string{"deleted_at IS NULL"}
	args := []any{}

	if filter.OwnerID != 0 {
		args = append(args, filter.OwnerID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR excerpt ILIKE $%d)", len(args), len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM articles WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		articleColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := scanArticle(rows, &a); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// FindByID returns a single article.
func (r *Repository) FindByID(ctx context.Context, id int64) (*Article, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1 AND deleted_at IS NULL`, id)
	var a Article
	if err := scanArticle(row, &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create inserts a new article and fills in the generated ID.
func (r *Repository) Create(ctx context.Context, article *Article) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO articles (title, slug, excerpt, content, status, user_id, published_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		article.Title, article.Slug, article.Excerpt, article.Content, string(article.Status), article.UserID, article.PublishedAt,
	).Scan(&article.ID, &article.CreatedAt, &article.UpdatedAt)
	return mapUniqueViolation(err)
}

// Update rewrites the content columns. Status changes go through
// UpdateStatus so the optimistic guard cannot be skipped.
func (r *Repository) Update(ctx context.Context, article *Article) error {
	tag, err := r.pool.Exec(ctx, `UPDATE articles SET title=$2, slug=$3, excerpt=$4, content=$5, updated_at=NOW()
WHERE id=$1 AND deleted_at IS NULL`,
		article.ID, article.Title, article.Slug, article.Excerpt, article.Content)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateStatus moves the article to target iff the row still carries the
// expected status. A zero row count reports ErrStale; the service
// re-reads and decides whether to retry.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, expected, target authz.Status, publishedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE articles SET status=$3, published_at=$4, updated_at=NOW()
WHERE id=$1 AND status=$2 AND deleted_at IS NULL`,
		id, string(expected), string(target), publishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

// SoftDelete hides the article from every query.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE articles SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SlugExists reports whether another live article already uses slug.
func (r *Repository) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM articles WHERE slug=$1 AND id<>$2 AND deleted_at IS NULL)`, slug, excludeID).Scan(&exists)
	return exists, err
}

// CountByStatus returns live article counts grouped by status.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM articles WHERE deleted_at IS NULL GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func scanArticle(row pgx.Row, a *Article) error {
	var status string
	if err := row.Scan(&a.ID, &a.Title, &a.Slug, &a.Excerpt, &a.Content, &status, &a.UserID, &a.PublishedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return err
	}
	a.Status = authz.Status(status)
	return nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateSlug
	}
	return err
}
