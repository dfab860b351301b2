package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/inms/inms/internal/authz"
	"github.com/inms/inms/internal/shared"
)

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateInput carries the fields for a new role.
type CreateInput struct {
	Name        string
	Slug        string
	Description string
	Permissions []string
}

// UpdateInput carries the mutable fields of a role.
type UpdateInput struct {
	Name        string
	Description string
	Permissions []string
}

// List returns every role.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Get returns a single role.
func (s *Service) Get(ctx context.Context, id int64) (*Role, error) {
	return s.repo.FindByID(ctx, id)
}

// RoleExists reports whether a role is stored or built in. Used by the
// user service to validate role assignments.
func (s *Service) RoleExists(ctx context.Context, slug string) (bool, error) {
	if authz.IsSystemRole(slug) {
		return true, nil
	}
	_, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Create validates the permission list and stores a new role. A row
// created under a built-in slug overrides that role's default set.
func (s *Service) Create(ctx context.Context, actor authz.Principal, in CreateInput) (*Role, error) {
	perms, err := validatePermissions(in.Permissions)
	if err != nil {
		return nil, err
	}
	role := &Role{
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		Permissions: perms,
	}
	if err := s.repo.Create(ctx, role); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, shared.AuditRoleCreated, role.ID, map[string]any{"slug": role.Slug, "permissions": role.Permissions})
	return role, nil
}

// Update rewrites a role. Changes apply to every holder on their next
// request since permissions resolve per authorization decision.
func (s *Service) Update(ctx context.Context, actor authz.Principal, id int64, in UpdateInput) (*Role, error) {
	perms, err := validatePermissions(in.Permissions)
	if err != nil {
		return nil, err
	}
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role.Name = in.Name
	role.Description = in.Description
	role.Permissions = perms
	if err := s.repo.Update(ctx, role); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, shared.AuditRoleUpdated, role.ID, map[string]any{"slug": role.Slug, "permissions": role.Permissions})
	return role, nil
}

// Delete removes a role. Built-in roles and roles still held by users
// are refused.
func (s *Service) Delete(ctx context.Context, actor authz.Principal, id int64) error {
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem() {
		return ErrSystemRole
	}
	if role.UsersCount > 0 {
		return ErrRoleInUse
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, shared.AuditRoleDeleted, id, map[string]any{"slug": role.Slug})
	return nil
}

// validatePermissions checks every key against the catalog. The wildcard
// is a valid stored value; it grants everything.
func validatePermissions(perms []string) ([]string, error) {
	out := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		if p != authz.Wildcard && !shared.KnownPermission(p) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPermission, p)
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) recordAudit(ctx context.Context, actor authz.Principal, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
