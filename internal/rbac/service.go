package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// RoleRepository resolves role assignments.
type RoleRepository interface {
	GetAssignment(ctx context.Context, userID int64) (UserAssignment, error)
	GetRoleForUser(ctx context.Context, userID int64) (Role, error)
}

// PermissionRepository resolves the permission catalog.
type PermissionRepository interface {
	GetPermissionsForRole(ctx context.Context, roleCode string) (shared.PermissionSet, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// Service orchestrates RBAC lookups.
type Service struct {
	roles       RoleRepository
	permissions PermissionRepository
}

// NewService constructs a Service.
func NewService(roles RoleRepository, permissions PermissionRepository) *Service {
	return &Service{roles: roles, permissions: permissions}
}

// LoadPrincipal builds the principal for userID from its persisted assignment.
func (s *Service) LoadPrincipal(ctx context.Context, userID int64) (shared.Principal, error) {
	assignment, err := s.roles.GetAssignment(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Principal{}, fmt.Errorf("%w: user %d has no active role", shared.ErrUnauthenticated, userID)
		}
		return shared.Principal{}, err
	}
	perms, err := s.permissions.GetPermissionsForRole(ctx, assignment.RoleCode)
	if err != nil {
		return shared.Principal{}, err
	}
	return shared.Principal{
		UserID:      assignment.UserID,
		RoleCode:    assignment.RoleCode,
		DeptID:      assignment.DeptID,
		Permissions: perms,
	}, nil
}

// Assignment returns the user's current role code and department.
func (s *Service) Assignment(ctx context.Context, userID int64) (UserAssignment, error) {
	return s.roles.GetAssignment(ctx, userID)
}

// RoleForUser returns the role used for data-scope resolution.
func (s *Service) RoleForUser(ctx context.Context, userID int64) (Role, error) {
	return s.roles.GetRoleForUser(ctx, userID)
}

// GetPermissionsForRole satisfies RolePermissionSource.
func (s *Service) GetPermissionsForRole(ctx context.Context, roleCode string) (shared.PermissionSet, error) {
	return s.permissions.GetPermissionsForRole(ctx, roleCode)
}

// PermissionTree builds the menu forest from the catalog.
func (s *Service) PermissionTree(ctx context.Context) (Tree, error) {
	perms, err := s.permissions.ListPermissions(ctx)
	if err != nil {
		return Tree{}, err
	}
	return BuildTree(perms)
}

// AllCodes returns every enabled permission code of the catalog.
func (s *Service) AllCodes(ctx context.Context) ([]string, error) {
	perms, err := s.permissions.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	enabled := lo.Filter(perms, func(p Permission, _ int) bool { return p.Enabled })
	return lo.Uniq(lo.Map(enabled, func(p Permission, _ int) string { return p.Code })), nil
}

// WarmPolicies materialises a policy for every catalog code and returns how
// many codes were processed.
func (s *Service) WarmPolicies(ctx context.Context, resolver *PolicyResolver) (int, error) {
	codes, err := s.AllCodes(ctx)
	if err != nil {
		return 0, err
	}
	for _, code := range codes {
		if _, err := resolver.GetOrCreatePolicy(code); err != nil {
			return 0, err
		}
	}
	return len(codes), nil
}
