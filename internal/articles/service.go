package articles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/inms/inms/internal/authz"
	"github.com/inms/inms/internal/shared"
)

// WorkflowLog persists and reads transition history. Satisfied by
// shared.WorkflowRecorder.
type WorkflowLog interface {
	Record(ctx context.Context, entry shared.WorkflowEntry) error
	History(ctx context.Context, articleID int64) ([]shared.WorkflowEntry, error)
}

// IdemGuard deduplicates create requests. Satisfied by
// shared.IdempotencyStore.
type IdemGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// TransitionCounter counts applied workflow transitions by history
// action. Satisfied by observability.Metrics.
type TransitionCounter interface {
	RecordTransition(action string)
}

// Service handles article business logic. Every operation takes the
// acting principal and answers through the authorization engine before
// touching storage.
type Service struct {
	repo        RepositoryPort
	engine      *authz.Engine
	workflow    WorkflowLog
	idem        IdemGuard
	audit       *shared.AuditLogger
	stats       *Stats
	transitions TransitionCounter
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, engine *authz.Engine, workflow WorkflowLog, idem IdemGuard, audit *shared.AuditLogger, stats *Stats, transitions TransitionCounter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		engine:      engine,
		workflow:    workflow,
		idem:        idem,
		audit:       audit,
		stats:       stats,
		transitions: transitions,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateInput carries the fields for a new draft.
type CreateInput struct {
	Title          string
	Excerpt        string
	Content        string
	IdempotencyKey string
}

// UpdateInput carries the mutable content fields. RefreshSlug re-derives
// the slug from the new title.
type UpdateInput struct {
	Title       string
	Excerpt     string
	Content     string
	RefreshSlug bool
}

// List returns articles the principal may see. Principals without the
// view_all capability are scoped to their own articles regardless of the
// requested filter.
func (s *Service) List(ctx context.Context, p authz.Principal, filter ListFilter) ([]Article, shared.Pagination, error) {
	if !p.Active {
		return nil, shared.Pagination{}, ErrDenied
	}
	if !s.engine.CanViewAll(ctx, p) {
		filter.OwnerID = p.UserID
	}
	arts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return arts, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Get returns a single article the principal may view.
func (s *Service) Get(ctx context.Context, p authz.Principal, id int64) (*Article, error) {
	article, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.engine.CanView(ctx, p, article.State()) {
		return nil, ErrDenied
	}
	return article, nil
}

// Create stores a new draft owned by the principal. A repeated
// idempotency key returns the conflict unchanged; a failed insert rolls
// the key back so the client may retry.
func (s *Service) Create(ctx context.Context, p authz.Principal, in CreateInput) (*Article, error) {
	if !s.engine.CanCreate(ctx, p) {
		return nil, ErrDenied
	}

	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, "articles"); err != nil {
			return nil, err
		}
	}

	article := &Article{
		Title:   in.Title,
		Excerpt: in.Excerpt,
		Content: in.Content,
		Status:  authz.StatusDraft,
		UserID:  p.UserID,
	}
	slug, err := s.uniqueSlug(ctx, in.Title, 0)
	if err == nil {
		article.Slug = slug
		err = s.repo.Create(ctx, article)
	}
	if err != nil {
		if in.IdempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, in.IdempotencyKey); delErr != nil {
				s.logger.Warn("idempotency rollback", slog.Any("error", delErr))
			}
		}
		return nil, err
	}

	s.recordAudit(ctx, p, shared.AuditArticleCreated, article.ID, map[string]any{"slug": article.Slug})
	s.stats.Invalidate(ctx)
	return article, nil
}

// Update rewrites the content fields of an article the principal may
// edit. Approved articles are frozen below the manage permission.
func (s *Service) Update(ctx context.Context, p authz.Principal, id int64, in UpdateInput) (*Article, error) {
	article, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.engine.CanEdit(ctx, p, article.State()) {
		return nil, ErrDenied
	}

	article.Title = in.Title
	article.Excerpt = in.Excerpt
	article.Content = in.Content
	if in.RefreshSlug {
		slug, err := s.uniqueSlug(ctx, in.Title, article.ID)
		if err != nil {
			return nil, err
		}
		article.Slug = slug
	}
	if err := s.repo.Update(ctx, article); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, p, shared.AuditArticleUpdated, article.ID, map[string]any{"slug": article.Slug})
	return article, nil
}

// SetStatus moves the article to target through the workflow state
// machine. Concurrent movers race on an optimistic status guard; a lost
// race re-reads the row and retries the decision once before reporting
// ErrStale.
func (s *Service) SetStatus(ctx context.Context, p authz.Principal, id int64, target authz.Status, note string) (*Article, error) {
	const attempts = 2
	var lastErr error
	for i := 0; i < attempts; i++ {
		article, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		from := article.Status

		if !s.engine.CanTransition(ctx, p, article.State(), target) {
			return nil, ErrDenied
		}

		status, publishedAt := s.engine.Machine().Apply(target, s.now())
		if err := s.repo.UpdateStatus(ctx, id, from, status, publishedAt); err != nil {
			if errors.Is(err, ErrStale) {
				lastErr = err
				continue
			}
			return nil, err
		}
		article.Status = status
		article.PublishedAt = publishedAt

		s.recordTransition(ctx, p, article, from, status, note)
		s.recordAudit(ctx, p, shared.AuditArticleStatusChanged, article.ID, map[string]any{
			"from": string(from), "to": string(status),
		})
		s.stats.Invalidate(ctx)
		return article, nil
	}
	return nil, lastErr
}

// Delete soft-deletes an article the principal may edit.
func (s *Service) Delete(ctx context.Context, p authz.Principal, id int64) error {
	article, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.engine.CanEdit(ctx, p, article.State()) {
		return ErrDenied
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, p, shared.AuditArticleDeleted, id, map[string]any{"slug": article.Slug})
	s.stats.Invalidate(ctx)
	return nil
}

// History returns the workflow trail for an article the principal may
// view.
func (s *Service) History(ctx context.Context, p authz.Principal, id int64) ([]shared.WorkflowEntry, error) {
	article, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.engine.CanView(ctx, p, article.State()) {
		return nil, ErrDenied
	}
	if s.workflow == nil {
		return nil, nil
	}
	return s.workflow.History(ctx, article.ID)
}

// Engine exposes the authorization engine so the handler can compute
// capability flags for responses.
func (s *Service) Engine() *authz.Engine {
	return s.engine
}

// uniqueSlug derives a slug from title and suffixes a counter until it
// is free.
func (s *Service) uniqueSlug(ctx context.Context, title string, excludeID int64) (string, error) {
	base := Slugify(title)
	slug := base
	for i := 2; ; i++ {
		exists, err := s.repo.SlugExists(ctx, slug, excludeID)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

// recordTransition classifies the move for the history trail: reversals
// are reachable only through the manage bypass and are kept distinct
// from the forward-flow actions.
func (s *Service) recordTransition(ctx context.Context, p authz.Principal, article *Article, from, to authz.Status, note string) {
	action := shared.WorkflowSubmit
	switch {
	case s.engine.Machine().IsReversal(from, to):
		action = shared.WorkflowRevert
	case to == authz.StatusApproved:
		action = shared.WorkflowApprove
	}
	if s.transitions != nil {
		s.transitions.RecordTransition(string(action))
	}
	if s.workflow == nil {
		return
	}
	entry := shared.WorkflowEntry{
		ArticleID:  article.ID,
		ActorID:    p.UserID,
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(to),
		Note:       note,
		At:         s.now(),
	}
	if err := s.workflow.Record(ctx, entry); err != nil {
		s.logger.Error("record transition", slog.Int64("article_id", article.ID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, p authz.Principal, action string, articleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  p.UserID,
		Action:   action,
		Entity:   "article",
		EntityID: strconv.FormatInt(articleID, 10),
		Meta:     meta,
		At:       s.now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
