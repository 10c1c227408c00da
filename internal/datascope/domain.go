// Package datascope turns a role's configured data scope into a row
// visibility predicate over the department hierarchy.
package datascope

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// Scope is the data scope configured on a role.
type Scope string

const (
	ScopeAll                Scope = "all"
	ScopeCustom             Scope = "custom"
	ScopeDepartment         Scope = "department"
	ScopeDepartmentAndBelow Scope = "department_and_below"
	ScopeSelf               Scope = "self"
)

// ParseScope validates a stored scope value.
func ParseScope(raw string) (Scope, error) {
	switch s := Scope(strings.ToLower(strings.TrimSpace(raw))); s {
	case ScopeAll, ScopeCustom, ScopeDepartment, ScopeDepartmentAndBelow, ScopeSelf:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown data scope %q", shared.ErrConfiguration, raw)
	}
}

// RoleScope is the slice of a role the resolver needs.
type RoleScope struct {
	Scope         Scope
	CustomDeptIDs []int64
}

// Subject identifies who is asking.
type Subject struct {
	UserID int64
	DeptID int64
}

// Department is a node of the department tree.
type Department struct {
	ID       int64
	ParentID *int64
}

// Row carries the columns a predicate inspects.
type Row struct {
	OwnerID int64
	DeptID  int64
}
