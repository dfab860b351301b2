package authz

import (
	"sort"
	"strings"
)

// Wildcard grants every permission. A set containing it ignores all
// explicit names.
const Wildcard = "*"

// PermissionSet is an immutable collection of permission keys, or the
// wildcard. Keys are opaque, case-sensitive strings owned by the
// surrounding application.
type PermissionSet struct {
	wildcard bool
	names    map[string]struct{}
}

// NewPermissionSet builds a set from the given keys. Blank entries are
// skipped; the wildcard collapses the set to all-permissions.
func NewPermissionSet(names ...string) PermissionSet {
	set := PermissionSet{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == Wildcard {
			return PermissionSet{wildcard: true}
		}
		if set.names == nil {
			set.names = make(map[string]struct{}, len(names))
		}
		set.names[name] = struct{}{}
	}
	return set
}

// Has reports whether the set grants the permission.
func (s PermissionSet) Has(name string) bool {
	if s.wildcard {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// HasAny reports whether the set grants at least one of the permissions.
func (s PermissionSet) HasAny(names ...string) bool {
	for _, name := range names {
		if s.Has(name) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set grants every one of the permissions.
func (s PermissionSet) HasAll(names ...string) bool {
	for _, name := range names {
		if !s.Has(name) {
			return false
		}
	}
	return true
}

// IsWildcard reports whether the set grants all permissions.
func (s PermissionSet) IsWildcard() bool {
	return s.wildcard
}

// IsEmpty reports whether the set grants nothing.
func (s PermissionSet) IsEmpty() bool {
	return !s.wildcard && len(s.names) == 0
}

// Names returns the granted keys sorted, or ["*"] for the wildcard set.
func (s PermissionSet) Names() []string {
	if s.wildcard {
		return []string{Wildcard}
	}
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
