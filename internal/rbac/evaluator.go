package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Code    string
	// Reason is set on Deny; it wraps shared.ErrForbidden or shared.ErrConfiguration.
	Reason error
}

// Err returns nil on Allow and the deny reason otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == nil {
		return fmt.Errorf("%w: %s", shared.ErrForbidden, d.Code)
	}
	return d.Reason
}

// RolePermissionSource resolves the permission codes attached to a role.
type RolePermissionSource interface {
	GetPermissionsForRole(ctx context.Context, roleCode string) (shared.PermissionSet, error)
}

// Evaluator decides whether a principal satisfies a required permission.
type Evaluator struct {
	superAdminRole string
	policies       *PolicyResolver
	roles          RolePermissionSource
}

// ErrSuperAdminRoleMissing reports a missing superadmin configuration.
var ErrSuperAdminRoleMissing = fmt.Errorf("%w: superadmin role not configured", shared.ErrConfiguration)

// NewEvaluator wires the evaluator. roles may be nil, in which case only the
// codes carried by the principal count.
func NewEvaluator(superAdminRole string, policies *PolicyResolver, roles RolePermissionSource) (*Evaluator, error) {
	superAdminRole = strings.TrimSpace(superAdminRole)
	if superAdminRole == "" {
		return nil, ErrSuperAdminRoleMissing
	}
	if policies == nil {
		policies = NewPolicyResolver()
	}
	return &Evaluator{superAdminRole: superAdminRole, policies: policies, roles: roles}, nil
}

// SuperAdminRole exposes the configured bypass role code.
func (e *Evaluator) SuperAdminRole() string {
	return e.superAdminRole
}

// IsSuperAdmin reports whether the principal carries the bypass role.
func (e *Evaluator) IsSuperAdmin(p shared.Principal) bool {
	return p.RoleCode == e.superAdminRole
}

// Authorize checks principal against requiredCode. An empty code means the
// target is open and no check is performed.
func (e *Evaluator) Authorize(ctx context.Context, p shared.Principal, requiredCode string) Decision {
	if requiredCode == "" {
		return Decision{Allowed: true}
	}
	if e.IsSuperAdmin(p) {
		return Decision{Allowed: true, Code: requiredCode}
	}
	policy, err := e.policies.GetOrCreatePolicy(requiredCode)
	if err != nil {
		return Decision{Code: requiredCode, Reason: err}
	}
	if policy.Requirement.SatisfiedBy(e.EffectivePermissions(ctx, p)) {
		return Decision{Allowed: true, Code: requiredCode}
	}
	return Decision{Code: requiredCode, Reason: fmt.Errorf("%w: missing %s", shared.ErrForbidden, requiredCode)}
}

// AuthorizeAny allows when at least one of codes is satisfied.
func (e *Evaluator) AuthorizeAny(ctx context.Context, p shared.Principal, codes ...string) Decision {
	if len(codes) == 0 {
		return Decision{Allowed: true}
	}
	var last Decision
	for _, code := range codes {
		last = e.Authorize(ctx, p, code)
		if last.Allowed {
			return last
		}
		if errors.Is(last.Reason, shared.ErrConfiguration) {
			return last
		}
	}
	last.Code = strings.Join(codes, ",")
	return last
}

// EffectivePermissions is the union of the principal's codes and the codes
// attached to its role. A failed role lookup contributes nothing.
func (e *Evaluator) EffectivePermissions(ctx context.Context, p shared.Principal) shared.PermissionSet {
	granted := p.Permissions
	if granted == nil {
		granted = shared.PermissionSet{}
	}
	if e.roles == nil || p.RoleCode == "" {
		return granted
	}
	fromRole, err := e.roles.GetPermissionsForRole(ctx, p.RoleCode)
	if err != nil {
		return granted
	}
	return granted.Union(fromRole)
}
