package authz

import (
	"context"
	"errors"
	"time"

	"github.com/inms/inms/internal/shared"
)

// Built-in role slugs. Roles under these slugs always resolve to a
// permission set even when the role store has no row for them, and they
// can never be deleted.
const (
	RoleAdmin    = "admin"
	RoleEditor   = "editor"
	RoleReporter = "reporter"
)

// SystemRoles returns the built-in role slugs.
func SystemRoles() []string {
	return []string{RoleAdmin, RoleEditor, RoleReporter}
}

// IsSystemRole reports whether slug names a built-in role.
func IsSystemRole(slug string) bool {
	switch slug {
	case RoleAdmin, RoleEditor, RoleReporter:
		return true
	}
	return false
}

// DefaultFor returns the built-in permission set for the well-known role
// slugs and the empty set for everything else. It is the second tier of
// Registry.Lookup and deliberately a pure function so the fallback rule
// stays testable on its own.
func DefaultFor(slug string) PermissionSet {
	switch slug {
	case RoleAdmin:
		return NewPermissionSet(Wildcard)
	case RoleEditor:
		return NewPermissionSet(
			shared.PermArticlesViewAll,
			shared.PermArticlesEditAll,
			shared.PermArticlesApprove,
		)
	case RoleReporter:
		return NewPermissionSet(
			shared.PermArticlesCreate,
			shared.PermArticlesEdit,
			shared.PermArticlesReview,
		)
	}
	return PermissionSet{}
}

// RoleSource supplies persisted role permissions. Implementations return
// shared.ErrNotFound when no role exists under the slug.
type RoleSource interface {
	RolePermissions(ctx context.Context, slug string) ([]string, error)
}

// Registry resolves a role slug to its PermissionSet: the persisted role
// configuration wins, absent roles fall back to DefaultFor, and a failing
// store resolves to the empty set (fail closed). Lookups within one
// authorization decision see one consistent snapshot because the engine
// resolves at most once per decision.
type Registry struct {
	source  RoleSource
	timeout time.Duration
}

// NewRegistry constructs a Registry over the given role source. A nil
// source resolves every slug through the built-in table only.
func NewRegistry(source RoleSource) *Registry {
	return &Registry{source: source, timeout: 3 * time.Second}
}

// Lookup resolves the permission set for a role slug. The returned error
// is informational for logging; the set is already failed closed when it
// is non-nil.
func (r *Registry) Lookup(ctx context.Context, slug string) (PermissionSet, error) {
	if slug == "" {
		return PermissionSet{}, nil
	}
	if r == nil || r.source == nil {
		return DefaultFor(slug), nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.source.RolePermissions(ctx, slug)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return DefaultFor(slug), nil
		}
		return PermissionSet{}, err
	}
	return NewPermissionSet(names...), nil
}
