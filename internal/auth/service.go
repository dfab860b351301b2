package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/inms/inms/internal/authz"
	"github.com/inms/inms/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials. Deactivated accounts
// get the same answer as bad credentials so the response does not leak
// account state.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Principal resolves the acting identity snapshot for a user ID. Unknown
// users resolve to an inactive principal so downstream checks fail closed.
func (s *Service) Principal(ctx context.Context, userID int64) (authz.Principal, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return authz.Principal{UserID: userID}, shared.ErrNotFound
		}
		return authz.Principal{}, err
	}
	return authz.Principal{UserID: user.ID, Role: user.Role, Active: user.IsActive}, nil
}

// User fetches an account by ID.
func (s *Service) User(ctx context.Context, userID int64) (*User, error) {
	return s.repo.FindByID(ctx, userID)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// RevokeSessions deletes every session record for a user.
func (s *Service) RevokeSessions(ctx context.Context, userID int64) error {
	return s.repo.DeleteSessionsForUser(ctx, userID)
}
