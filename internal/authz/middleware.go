package authz

import (
	"context"
	"log/slog"
	"net/http"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal resolved by the session
// middleware, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// Middleware wires permission guards for HTTP handlers. Guards fail
// closed: missing principal, inactive account and registry failure all
// answer 403.
type Middleware struct {
	Registry *Registry
	Logger   *slog.Logger
}

// RequireAny ensures the current principal holds at least one of the
// required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := dedupe(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.grantedFor(r)
			if ok && granted.HasAny(required...) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the current principal holds every required
// permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := dedupe(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.grantedFor(r)
			if ok && granted.HasAll(required...) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func (m Middleware) grantedFor(r *http.Request) (PermissionSet, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok || !p.Active {
		return PermissionSet{}, false
	}
	granted, err := m.Registry.Lookup(r.Context(), p.Role)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("authz guard lookup", slog.String("role", p.Role), slog.Any("error", err))
		}
		return PermissionSet{}, false
	}
	return granted, true
}

// dedupe drops blanks and duplicates while preserving case; permission
// keys are opaque and case-sensitive.
func dedupe(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
