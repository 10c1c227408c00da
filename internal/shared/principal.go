package shared

import (
	"maps"
	"slices"
	"strings"
)

// PermissionSet is an immutable-by-convention set of permission codes.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from codes, dropping blanks.
func NewPermissionSet(codes ...string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		set[code] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Union returns a new set containing the codes of both sets.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for code := range s {
		out[code] = struct{}{}
	}
	for code := range other {
		out[code] = struct{}{}
	}
	return out
}

// Codes returns the codes in sorted order.
func (s PermissionSet) Codes() []string {
	return slices.Sorted(maps.Keys(s))
}

// Principal describes the authenticated actor for the duration of one request.
type Principal struct {
	UserID      int64
	RoleCode    string
	DeptID      int64
	Permissions PermissionSet
}

// HasPermission reports whether the code is directly attached to the principal.
func (p Principal) HasPermission(code string) bool {
	return p.Permissions.Has(code)
}
