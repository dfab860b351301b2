package authz

import (
	"time"

	"github.com/inms/inms/internal/shared"
)

// Machine encodes the legal article status transitions and the guard each
// one requires. It is stateless; decisions are pure functions of the
// permission set, principal and article snapshots passed in.
type Machine struct{}

// guard is the condition one transition row requires.
type guard func(perms PermissionSet, p Principal, a ArticleState) bool

type edge struct {
	From Status
	To   Status
}

// transitions is the forward-flow table. The manage/wildcard bypass is a
// single rule in Allows, kept out of every row so it cannot drift.
var transitions = map[edge]guard{
	{From: StatusDraft, To: StatusReview}: func(perms PermissionSet, p Principal, a ArticleState) bool {
		return perms.Has(shared.PermArticlesReview) && a.OwnedBy(p)
	},
	{From: StatusReview, To: StatusApproved}: func(perms PermissionSet, _ Principal, _ ArticleState) bool {
		return perms.Has(shared.PermArticlesApprove)
	},
}

// Allows reports whether the principal may move the article from its
// current status to target. Re-evaluating with identical inputs yields
// identical results.
func (Machine) Allows(perms PermissionSet, p Principal, a ArticleState, target Status) bool {
	if !p.Active {
		return false
	}
	if !a.Status.Valid() || !target.Valid() {
		return false
	}
	if a.Status == target {
		// No-op transitions are rejected for everyone, manage included.
		return false
	}
	if perms.Has(shared.PermArticlesManage) {
		return true
	}
	g, ok := transitions[edge{From: a.Status, To: target}]
	if !ok {
		return false
	}
	return g(perms, p, a)
}

// Apply returns the status/publication pair the caller must commit
// atomically after an allowed transition: the publication timestamp is set
// iff target is approved and cleared otherwise.
func (Machine) Apply(target Status, now time.Time) (Status, *time.Time) {
	if target == StatusApproved {
		return target, &now
	}
	return target, nil
}

// IsReversal reports whether a transition runs against the forward flow.
// Reversals are only reachable through the manage bypass and are recorded
// distinctly in workflow history.
func (Machine) IsReversal(from, to Status) bool {
	rank := map[Status]int{StatusDraft: 0, StatusReview: 1, StatusApproved: 2}
	return rank[to] < rank[from]
}
