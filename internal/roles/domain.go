package roles

import (
	"errors"
	"time"

	"github.com/inms/inms/internal/authz"
)

var (
	// ErrDuplicateSlug signals a unique constraint hit on roles.slug.
	ErrDuplicateSlug = errors.New("role slug already exists")
	// ErrSystemRole rejects destructive changes to built-in roles.
	ErrSystemRole = errors.New("built-in roles cannot be deleted")
	// ErrRoleInUse rejects deleting a role that users still hold.
	ErrRoleInUse = errors.New("role is assigned to users")
	// ErrUnknownPermission rejects permission keys outside the catalog.
	ErrUnknownPermission = errors.New("unknown permission key")
)

// Role is a named permission bundle assignable to users.
type Role struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	Permissions []string
	UsersCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsSystem reports whether the role is one of the built-in slugs.
func (r Role) IsSystem() bool {
	return authz.IsSystemRole(r.Slug)
}

// CanDelete reports whether the role may be removed.
func (r Role) CanDelete() bool {
	return !r.IsSystem() && r.UsersCount == 0
}
