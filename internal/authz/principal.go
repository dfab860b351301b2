package authz

// Status is an article lifecycle state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusReview   Status = "review"
	StatusApproved Status = "approved"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusApproved:
		return true
	}
	return false
}

// Statuses returns all lifecycle states in workflow order.
func Statuses() []Status {
	return []Status{StatusDraft, StatusReview, StatusApproved}
}

// Principal is the acting identity for one authorization decision: the
// authenticated user, the role slug the decision keys on, and whether the
// account is active. It is an immutable snapshot; decisions taken against
// it never mutate it.
type Principal struct {
	UserID int64
	Role   string
	Active bool
}

// ArticleState is the lifecycle snapshot of a single article as seen at
// decision time. Callers must evaluate decisions and commit the resulting
// mutation against the same snapshot (see articles.Service.SetStatus).
type ArticleState struct {
	OwnerID int64
	Status  Status
}

// OwnedBy reports whether the principal owns the article.
func (a ArticleState) OwnedBy(p Principal) bool {
	return a.OwnerID != 0 && a.OwnerID == p.UserID
}
