package rbac

import (
	"github.com/odyssey-erp/odyssey-admin/internal/datascope"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// PermissionKind distinguishes navigable menu entries from UI actions.
type PermissionKind string

const (
	KindMenu   PermissionKind = "menu"
	KindButton PermissionKind = "button"
)

// Permission is a node of the permission forest.
type Permission struct {
	ID       int64          `json:"id"`
	Code     string         `json:"code"`
	Name     string         `json:"name"`
	ParentID *int64         `json:"parent_id,omitempty"`
	Kind     PermissionKind `json:"kind"`
	Order    int            `json:"order"`
	Enabled  bool           `json:"enabled"`
}

// Role represents a high-level permission grouping with its data scope.
type Role struct {
	ID            int64
	Code          string
	Name          string
	DataScope     datascope.Scope
	Permissions   shared.PermissionSet
	CustomDeptIDs []int64
}

// ScopeRule projects the role onto the data-scope resolver input.
func (r Role) ScopeRule() datascope.RoleScope {
	return datascope.RoleScope{Scope: r.DataScope, CustomDeptIDs: r.CustomDeptIDs}
}

// UserAssignment ties a user to its role and department.
type UserAssignment struct {
	UserID   int64
	RoleCode string
	DeptID   int64
}
