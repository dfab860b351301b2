package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inms/inms/internal/shared"
)

func newTestEngine(perms map[string][]string) *Engine {
	return NewEngine(NewRegistry(&stubRoleSource{perms: perms}), nil)
}

func TestCanViewOwnerAndViewAll(t *testing.T) {
	engine := newTestEngine(nil) // built-in defaults only
	ctx := context.Background()

	reporter := Principal{UserID: 7, Role: RoleReporter, Active: true}
	editor := Principal{UserID: 8, Role: RoleEditor, Active: true}
	own := ArticleState{OwnerID: 7, Status: StatusDraft}
	foreign := ArticleState{OwnerID: 99, Status: StatusDraft}

	require.True(t, engine.CanView(ctx, reporter, own))
	require.False(t, engine.CanView(ctx, reporter, foreign))
	require.True(t, engine.CanView(ctx, editor, foreign))
	require.True(t, engine.CanViewAll(ctx, editor))
	require.False(t, engine.CanViewAll(ctx, reporter))
}

func TestCanCreate(t *testing.T) {
	engine := newTestEngine(nil)
	ctx := context.Background()

	require.True(t, engine.CanCreate(ctx, Principal{UserID: 1, Role: RoleReporter, Active: true}))
	require.True(t, engine.CanCreate(ctx, Principal{UserID: 2, Role: RoleAdmin, Active: true}))
	require.False(t, engine.CanCreate(ctx, Principal{UserID: 3, Role: RoleEditor, Active: true}))
}

func TestCanEditFrozenWhenApproved(t *testing.T) {
	engine := newTestEngine(nil)
	ctx := context.Background()

	owner := Principal{UserID: 7, Role: RoleReporter, Active: true}
	editor := Principal{UserID: 8, Role: RoleEditor, Active: true}
	admin := Principal{UserID: 9, Role: RoleAdmin, Active: true}

	draft := ArticleState{OwnerID: 7, Status: StatusDraft}
	approved := ArticleState{OwnerID: 7, Status: StatusApproved}

	require.True(t, engine.CanEdit(ctx, owner, draft))
	// Owner with plain edit loses access once approved.
	require.False(t, engine.CanEdit(ctx, owner, approved))
	// edit_all covers foreign drafts but not approved articles.
	require.True(t, engine.CanEdit(ctx, editor, draft))
	require.False(t, engine.CanEdit(ctx, editor, approved))
	// Wildcard (via manage rule) reaches approved articles.
	require.True(t, engine.CanEdit(ctx, admin, approved))
}

func TestCanEditRequiresOwnership(t *testing.T) {
	engine := newTestEngine(map[string][]string{
		"stringer": {shared.PermArticlesEdit},
	})
	ctx := context.Background()

	p := Principal{UserID: 7, Role: "stringer", Active: true}
	require.True(t, engine.CanEdit(ctx, p, ArticleState{OwnerID: 7, Status: StatusDraft}))
	require.False(t, engine.CanEdit(ctx, p, ArticleState{OwnerID: 99, Status: StatusDraft}))
}

func TestInactivePrincipalDeniedEverything(t *testing.T) {
	engine := newTestEngine(nil)
	ctx := context.Background()

	for _, role := range SystemRoles() {
		p := Principal{UserID: 7, Role: role, Active: false}
		a := ArticleState{OwnerID: 7, Status: StatusDraft}
		require.False(t, engine.CanView(ctx, p, a), "role %s", role)
		require.False(t, engine.CanViewAll(ctx, p), "role %s", role)
		require.False(t, engine.CanCreate(ctx, p), "role %s", role)
		require.False(t, engine.CanEdit(ctx, p, a), "role %s", role)
		require.False(t, engine.CanTransition(ctx, p, a, StatusReview), "role %s", role)
	}
}

func TestWildcardAllowsViewCreateAndBypass(t *testing.T) {
	engine := newTestEngine(nil)
	ctx := context.Background()
	admin := Principal{UserID: 1, Role: RoleAdmin, Active: true}

	for _, status := range Statuses() {
		a := ArticleState{OwnerID: 99, Status: status}
		require.True(t, engine.CanView(ctx, admin, a))
		require.True(t, engine.CanCreate(ctx, admin))
		for _, target := range Statuses() {
			got := engine.CanTransition(ctx, admin, a, target)
			if target == status {
				require.False(t, got, "no-op %s must be rejected", status)
			} else {
				require.True(t, got, "%s -> %s", status, target)
			}
		}
	}
}

func TestDecisionsAreIdempotent(t *testing.T) {
	engine := newTestEngine(nil)
	ctx := context.Background()

	p := Principal{UserID: 7, Role: RoleReporter, Active: true}
	a := ArticleState{OwnerID: 7, Status: StatusDraft}

	first := engine.CanTransition(ctx, p, a, StatusReview)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, engine.CanTransition(ctx, p, a, StatusReview))
	}
}
