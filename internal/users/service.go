package users

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/inms/inms/internal/authz"
	"github.com/inms/inms/internal/shared"
)

// ErrUnknownRole rejects writes that reference a role the registry does
// not know about.
var ErrUnknownRole = errors.New("unknown role")

// SessionRevoker invalidates persisted sessions when an account loses
// access. Satisfied by the auth service.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, userID int64) error
}

// RoleChecker answers whether a role slug exists. Satisfied by the roles
// service.
type RoleChecker interface {
	RoleExists(ctx context.Context, slug string) (bool, error)
}

// Service handles user management business logic.
type Service struct {
	repo    RepositoryPort
	revoker SessionRevoker
	roles   RoleChecker
	audit   *shared.AuditLogger
	logger  *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, revoker SessionRevoker, roles RoleChecker, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, revoker: revoker, roles: roles, audit: audit, logger: logger}
}

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// UpdateInput carries the mutable fields of an account. An empty
// Password leaves the stored hash untouched.
type UpdateInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// List returns accounts matching the filter with pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]User, shared.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// Create hashes the password and stores a new active account.
func (s *Service) Create(ctx context.Context, actor authz.Principal, in CreateInput) (*User, error) {
	if err := s.checkRole(ctx, in.Role); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, shared.AuditUserCreated, user.ID, map[string]any{"email": user.Email, "role": user.Role})
	return user, nil
}

// Update rewrites an account. Role changes take effect on the user's
// next request because permissions resolve per request.
func (s *Service) Update(ctx context.Context, actor authz.Principal, id int64, in UpdateInput) (*User, error) {
	if err := s.checkRole(ctx, in.Role); err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Name = in.Name
	user.Email = in.Email
	user.Role = in.Role
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = string(hash)
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, shared.AuditUserUpdated, user.ID, map[string]any{"email": user.Email, "role": user.Role})
	return user, nil
}

// Deactivate disables the account and revokes its sessions so the user
// is signed out everywhere immediately.
func (s *Service) Deactivate(ctx context.Context, actor authz.Principal, id int64) error {
	if actor.UserID == id {
		return ErrSelfDeactivate
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	if s.revoker != nil {
		if err := s.revoker.RevokeSessions(ctx, id); err != nil {
			s.logger.Warn("revoke sessions", slog.Int64("user_id", id), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actor, shared.AuditUserDeactivated, id, nil)
	return nil
}

// Reactivate re-enables the account.
func (s *Service) Reactivate(ctx context.Context, actor authz.Principal, id int64) error {
	if err := s.repo.SetActive(ctx, id, true); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, shared.AuditUserReactivated, id, nil)
	return nil
}

func (s *Service) checkRole(ctx context.Context, slug string) error {
	if authz.IsSystemRole(slug) {
		return nil
	}
	if s.roles == nil {
		return ErrUnknownRole
	}
	ok, err := s.roles.RoleExists(ctx, slug)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownRole
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor authz.Principal, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
