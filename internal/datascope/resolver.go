package datascope

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// DepartmentRepository returns deptID together with all of its transitive
// descendants.
type DepartmentRepository interface {
	GetSubtree(ctx context.Context, deptID int64) ([]int64, error)
}

// Resolver converts role scopes into predicates.
type Resolver struct {
	depts DepartmentRepository
}

// NewResolver constructs a Resolver.
func NewResolver(depts DepartmentRepository) *Resolver {
	return &Resolver{depts: depts}
}

// Resolve builds the predicate for subject under role.
func (r *Resolver) Resolve(ctx context.Context, role RoleScope, subject Subject) (Predicate, error) {
	switch role.Scope {
	case ScopeAll:
		return Predicate{Scope: ScopeAll, Unrestricted: true}, nil
	case ScopeSelf:
		return Predicate{Scope: ScopeSelf, OwnerID: subject.UserID}, nil
	case ScopeDepartment:
		pred := Predicate{Scope: ScopeDepartment}
		if subject.DeptID != 0 {
			pred.DeptIDs = []int64{subject.DeptID}
		}
		return pred, nil
	case ScopeDepartmentAndBelow:
		pred := Predicate{Scope: ScopeDepartmentAndBelow}
		if subject.DeptID == 0 {
			return pred, nil
		}
		if r.depts == nil {
			return Predicate{}, fmt.Errorf("%w: department repository not configured", shared.ErrConfiguration)
		}
		ids, err := r.depts.GetSubtree(ctx, subject.DeptID)
		if err != nil {
			return Predicate{}, fmt.Errorf("datascope: subtree of %d: %w", subject.DeptID, err)
		}
		pred.DeptIDs = normalizeIDs(append(ids, subject.DeptID))
		return pred, nil
	case ScopeCustom:
		return Predicate{Scope: ScopeCustom, DeptIDs: normalizeIDs(role.CustomDeptIDs)}, nil
	default:
		return Predicate{}, fmt.Errorf("%w: unknown data scope %q", shared.ErrConfiguration, role.Scope)
	}
}

func normalizeIDs(ids []int64) []int64 {
	out := lo.Uniq(lo.Filter(ids, func(id int64, _ int) bool { return id != 0 }))
	slices.Sort(out)
	return out
}
