// Package authz is the authorization and workflow-state engine: it decides
// what a role may do from its permission set and whether a status
// transition on an article is legal for the acting principal. Decisions
// are pure functions over immutable snapshots; persistence and transport
// live with the callers.
package authz

import (
	"context"
	"log/slog"

	"github.com/inms/inms/internal/shared"
)

// rule is one row of an ordered policy. Rules are evaluated in slice
// order; the first one that allows wins.
type rule struct {
	name  string
	allow func(perms PermissionSet, p Principal, a ArticleState) bool
}

var viewRules = []rule{
	{"manage-or-view-all", func(perms PermissionSet, _ Principal, _ ArticleState) bool {
		return perms.HasAny(shared.PermArticlesManage, shared.PermArticlesViewAll)
	}},
	{"owner", func(_ PermissionSet, p Principal, a ArticleState) bool {
		return a.OwnedBy(p)
	}},
}

var createRules = []rule{
	{"manage-or-create", func(perms PermissionSet, _ Principal, _ ArticleState) bool {
		return perms.HasAny(shared.PermArticlesManage, shared.PermArticlesCreate)
	}},
}

var editRules = []rule{
	{"manage", func(perms PermissionSet, _ Principal, _ ArticleState) bool {
		return perms.Has(shared.PermArticlesManage)
	}},
	{"edit-all-unapproved", func(perms PermissionSet, _ Principal, a ArticleState) bool {
		return perms.Has(shared.PermArticlesEditAll) && a.Status != StatusApproved
	}},
	{"own-edit-unapproved", func(perms PermissionSet, p Principal, a ArticleState) bool {
		return perms.Has(shared.PermArticlesEdit) && a.OwnedBy(p) && a.Status != StatusApproved
	}},
}

func evaluate(rules []rule, perms PermissionSet, p Principal, a ArticleState) bool {
	for _, r := range rules {
		if r.allow(perms, p, a) {
			return true
		}
	}
	return false
}

// Engine composes Registry lookups with the workflow state machine into
// allow/deny decisions. All methods are deterministic, never mutate their
// inputs and are safe for concurrent use. An inactive principal is denied
// everything; the session layer rejects such principals upstream, the
// engine re-checks defensively.
type Engine struct {
	registry *Registry
	machine  Machine
	logger   *slog.Logger
}

// NewEngine constructs an Engine over the given registry.
func NewEngine(registry *Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: registry, logger: logger}
}

// resolve fetches the principal's permission set once per decision,
// failing closed to the empty set when the registry errors.
func (e *Engine) resolve(ctx context.Context, p Principal) PermissionSet {
	perms, err := e.registry.Lookup(ctx, p.Role)
	if err != nil {
		e.logger.Warn("authz: role lookup failed, denying",
			slog.String("role", p.Role), slog.Any("error", err))
		return PermissionSet{}
	}
	return perms
}

// CanView decides read access to a single article.
func (e *Engine) CanView(ctx context.Context, p Principal, a ArticleState) bool {
	if !p.Active {
		return false
	}
	return evaluate(viewRules, e.resolve(ctx, p), p, a)
}

// CanViewAll decides whether the principal sees every article, not just
// their own. List endpoints use it for visibility scoping.
func (e *Engine) CanViewAll(ctx context.Context, p Principal) bool {
	if !p.Active {
		return false
	}
	return e.resolve(ctx, p).HasAny(shared.PermArticlesManage, shared.PermArticlesViewAll)
}

// CanCreate decides whether the principal may draft new articles.
func (e *Engine) CanCreate(ctx context.Context, p Principal) bool {
	if !p.Active {
		return false
	}
	return evaluate(createRules, e.resolve(ctx, p), p, ArticleState{})
}

// CanEdit decides content edits. Approved articles are frozen for
// everyone below the manage permission.
func (e *Engine) CanEdit(ctx context.Context, p Principal, a ArticleState) bool {
	if !p.Active {
		return false
	}
	return evaluate(editRules, e.resolve(ctx, p), p, a)
}

// CanTransition decides whether the principal may move the article to
// target. The transition table and its guards live on Machine.
func (e *Engine) CanTransition(ctx context.Context, p Principal, a ArticleState, target Status) bool {
	if !p.Active {
		return false
	}
	return e.machine.Allows(e.resolve(ctx, p), p, a, target)
}

// Machine exposes the workflow state machine for callers that need the
// side-effect contract (Apply) or reversal classification.
func (e *Engine) Machine() Machine {
	return e.machine
}
