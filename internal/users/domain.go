package users

import (
	"errors"
	"time"
)

// ErrDuplicateEmail signals a unique constraint hit on users.email.
var ErrDuplicateEmail = errors.New("email already in use")

// ErrSelfDeactivate rejects an admin locking themselves out.
var ErrSelfDeactivate = errors.New("cannot deactivate own account")

// User represents a newsroom account as seen by the management screens.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ListFilter narrows the user listing.
type ListFilter struct {
	Role    string
	Status  string // "active", "inactive" or "" for all
	Search  string // matches name or email
	Page    int
	PerPage int
}
