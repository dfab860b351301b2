package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	exportLimit     = 5000
)

// Repository defines the timeline queries.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService builds an audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of the audit trail. It reads pageSize+1 rows
// so HasNext does not need a count query.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}

	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export fetches the full filtered trail for CSV download, capped so a
// runaway range cannot exhaust memory.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.TimelineWindow(ctx, filters, exportLimit, 0)
}

// PGRepository queries audit_logs joined with users.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow returns a window of the trail, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	conds := []string{"1=1"}
	args := []any{}

	if !filters.From.IsZero() {
		args = append(args, filters.From)
		conds = append(conds, fmt.Sprintf("a.occurred_at >= $%d", len(args)))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		conds = append(conds, fmt.Sprintf("a.occurred_at <= $%d", len(args)))
	}
	if filters.Actor != "" {
		args = append(args, "%"+filters.Actor+"%")
		conds = append(conds, fmt.Sprintf("(u.name ILIKE $%d OR u.email ILIKE $%d)", len(args), len(args)))
	}
	if filters.Entity != "" {
		args = append(args, filters.Entity)
		conds = append(conds, fmt.Sprintf("a.entity = $%d", len(args)))
	}
	if filters.Action != "" {
		args = append(args, filters.Action)
		conds = append(conds, fmt.Sprintf("a.action = $%d", len(args)))
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT a.occurred_at, a.actor_id, COALESCE(u.name, ''), a.action, a.entity, a.entity_id, COALESCE(a.meta::text, '')
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE %s
ORDER BY a.occurred_at DESC, a.id DESC
LIMIT $%d OFFSET $%d`, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var at time.Time
		if err := rows.Scan(&at, &row.ActorID, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &row.Meta); err != nil {
			return nil, err
		}
		row.At = at
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
