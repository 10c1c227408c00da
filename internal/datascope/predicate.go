package datascope

import (
	"fmt"
	"slices"
)

// Predicate narrows a query to the rows a principal may see.
type Predicate struct {
	Scope        Scope   `json:"scope"`
	Unrestricted bool    `json:"unrestricted"`
	OwnerID      int64   `json:"owner_id,omitempty"`
	DeptIDs      []int64 `json:"dept_ids,omitempty"`
}

// Allows evaluates the predicate against one row.
func (p Predicate) Allows(row Row) bool {
	switch {
	case p.Unrestricted:
		return true
	case p.Scope == ScopeSelf:
		return p.OwnerID != 0 && row.OwnerID == p.OwnerID
	default:
		return slices.Contains(p.DeptIDs, row.DeptID)
	}
}

// SQL renders the predicate as a WHERE fragment with pgx positional arguments
// numbered from offset+1. An empty department set renders FALSE.
func (p Predicate) SQL(ownerCol, deptCol string, offset int) (string, []any) {
	switch {
	case p.Unrestricted:
		return "TRUE", nil
	case p.Scope == ScopeSelf:
		return fmt.Sprintf("%s = $%d", ownerCol, offset+1), []any{p.OwnerID}
	case len(p.DeptIDs) == 0:
		return "FALSE", nil
	case len(p.DeptIDs) == 1:
		return fmt.Sprintf("%s = $%d", deptCol, offset+1), []any{p.DeptIDs[0]}
	default:
		return fmt.Sprintf("%s = ANY($%d)", deptCol, offset+1), []any{p.DeptIDs}
	}
}
