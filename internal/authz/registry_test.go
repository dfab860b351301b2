package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inms/inms/internal/shared"
)

type stubRoleSource struct {
	perms map[string][]string
	err   error
}

func (s *stubRoleSource) RolePermissions(ctx context.Context, slug string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	perms, ok := s.perms[slug]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return perms, nil
}

func TestPermissionSetWildcardCollapses(t *testing.T) {
	set := NewPermissionSet(shared.PermArticlesEdit, Wildcard, shared.PermArticlesCreate)
	require.True(t, set.IsWildcard())
	require.True(t, set.Has("anything.at.all"))
	require.Equal(t, []string{Wildcard}, set.Names())
}

func TestPermissionSetCaseSensitive(t *testing.T) {
	set := NewPermissionSet(shared.PermArticlesEdit)
	require.True(t, set.Has(shared.PermArticlesEdit))
	require.False(t, set.Has("Articles.Edit"))
	require.False(t, set.Has(shared.PermArticlesEditAll))
}

func TestDefaultForBuiltinRoles(t *testing.T) {
	require.True(t, DefaultFor(RoleAdmin).IsWildcard())

	editor := DefaultFor(RoleEditor)
	require.True(t, editor.HasAll(shared.PermArticlesViewAll, shared.PermArticlesEditAll, shared.PermArticlesApprove))
	require.False(t, editor.Has(shared.PermArticlesCreate))

	reporter := DefaultFor(RoleReporter)
	require.True(t, reporter.HasAll(shared.PermArticlesCreate, shared.PermArticlesEdit, shared.PermArticlesReview))
	require.False(t, reporter.Has(shared.PermArticlesApprove))

	require.True(t, DefaultFor("columnist").IsEmpty())
}

func TestRegistryPersistedRoleWins(t *testing.T) {
	registry := NewRegistry(&stubRoleSource{perms: map[string][]string{
		RoleEditor: {shared.PermArticlesViewAll},
	}})

	perms, err := registry.Lookup(context.Background(), RoleEditor)
	require.NoError(t, err)
	require.True(t, perms.Has(shared.PermArticlesViewAll))
	// The persisted set replaces the built-in defaults, it does not merge.
	require.False(t, perms.Has(shared.PermArticlesApprove))
}

func TestRegistryFallsBackToDefaults(t *testing.T) {
	registry := NewRegistry(&stubRoleSource{perms: map[string][]string{}})

	perms, err := registry.Lookup(context.Background(), RoleReporter)
	require.NoError(t, err)
	require.True(t, perms.Has(shared.PermArticlesReview))
}

func TestRegistryUnknownRoleFailsClosed(t *testing.T) {
	registry := NewRegistry(&stubRoleSource{perms: map[string][]string{}})

	perms, err := registry.Lookup(context.Background(), "columnist")
	require.NoError(t, err)
	require.True(t, perms.IsEmpty())
}

func TestRegistrySourceFailureFailsClosed(t *testing.T) {
	registry := NewRegistry(&stubRoleSource{err: errors.New("connection refused")})

	perms, err := registry.Lookup(context.Background(), RoleAdmin)
	require.Error(t, err)
	require.True(t, perms.IsEmpty())
}

func TestRegistryNilSourceUsesDefaults(t *testing.T) {
	registry := NewRegistry(nil)

	perms, err := registry.Lookup(context.Background(), RoleAdmin)
	require.NoError(t, err)
	require.True(t, perms.IsWildcard())
}
