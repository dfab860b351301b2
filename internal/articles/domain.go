package articles

import (
	"errors"
	"time"

	"github.com/inms/inms/internal/authz"
)

var (
	// ErrDenied signals the acting principal may not perform the
	// operation on this article.
	ErrDenied = errors.New("operation not permitted")
	// ErrStale signals a lost optimistic-concurrency race on the status
	// column after the automatic retry.
	ErrStale = errors.New("article status changed concurrently")
	// ErrDuplicateSlug signals a unique constraint hit on articles.slug.
	ErrDuplicateSlug = errors.New("slug already exists")
)

// Article is a newsroom story moving through the draft/review/approved
// workflow. PublishedAt is non-nil iff Status is approved.
type Article struct {
	ID          int64
	Title       string
	Slug        string
	Excerpt     string
	Content     string
	Status      authz.Status
	UserID      int64
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// State projects the article into the snapshot the authorization engine
// evaluates.
func (a *Article) State() authz.ArticleState {
	return authz.ArticleState{OwnerID: a.UserID, Status: a.Status}
}

// ListFilter narrows the article listing. OwnerID zero means no owner
// scoping; the service forces it for principals without view_all.
type ListFilter struct {
	OwnerID int64
	Status  string
	Search  string
	Page    int
	PerPage int
}
