package datascope

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

func ptr(v int64) *int64 { return &v }

// root(1) -> A(2) -> B(3) -> C(4); D(5) is A's sibling.
func sampleTree() *Tree {
	return NewTree([]Department{
		{ID: 1},
		{ID: 2, ParentID: ptr(1)},
		{ID: 3, ParentID: ptr(2)},
		{ID: 4, ParentID: ptr(3)},
		{ID: 5, ParentID: ptr(1)},
	})
}

func TestDepartmentAndBelowIsTransitive(t *testing.T) {
	resolver := NewResolver(sampleTree())
	pred, err := resolver.Resolve(context.Background(), RoleScope{Scope: ScopeDepartmentAndBelow}, Subject{UserID: 9, DeptID: 2})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 4}, pred.DeptIDs)
	require.True(t, pred.Allows(Row{DeptID: 4}))
	require.False(t, pred.Allows(Row{DeptID: 5}))
	require.False(t, pred.Allows(Row{DeptID: 1}))
}

func TestResolveScopes(t *testing.T) {
	resolver := NewResolver(sampleTree())
	ctx := context.Background()
	subject := Subject{UserID: 42, DeptID: 3}

	all, err := resolver.Resolve(ctx, RoleScope{Scope: ScopeAll}, subject)
	require.NoError(t, err)
	require.True(t, all.Unrestricted)
	require.True(t, all.Allows(Row{OwnerID: 1, DeptID: 99}))

	self, err := resolver.Resolve(ctx, RoleScope{Scope: ScopeSelf}, subject)
	require.NoError(t, err)
	require.True(t, self.Allows(Row{OwnerID: 42, DeptID: 5}))
	require.False(t, self.Allows(Row{OwnerID: 7, DeptID: 3}))

	dept, err := resolver.Resolve(ctx, RoleScope{Scope: ScopeDepartment}, subject)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, dept.DeptIDs)
	require.False(t, dept.Allows(Row{DeptID: 4}))

	custom, err := resolver.Resolve(ctx, RoleScope{Scope: ScopeCustom, CustomDeptIDs: []int64{5, 1, 5}}, subject)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 5}, custom.DeptIDs)
	require.False(t, custom.Allows(Row{DeptID: 3}))

	_, err = resolver.Resolve(ctx, RoleScope{Scope: "everything"}, subject)
	require.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestSubjectWithoutDepartmentSeesNothing(t *testing.T) {
	resolver := NewResolver(sampleTree())
	pred, err := resolver.Resolve(context.Background(), RoleScope{Scope: ScopeDepartmentAndBelow}, Subject{UserID: 1})
	require.NoError(t, err)
	require.Empty(t, pred.DeptIDs)
	clause, args := pred.SQL("created_by", "dept_id", 0)
	require.Equal(t, "FALSE", clause)
	require.Nil(t, args)
}

func TestDescendantsVisitsEachNodeOnce(t *testing.T) {
	// 2 and 3 point at each other below 1; BFS must still terminate.
	tree := NewTree([]Department{
		{ID: 1},
		{ID: 2, ParentID: ptr(1)},
		{ID: 3, ParentID: ptr(2)},
		{ID: 2, ParentID: ptr(3)},
	})
	require.ElementsMatch(t, []int64{2, 3}, tree.Descendants(1))
}

func TestTreeUnknownDepartment(t *testing.T) {
	_, err := sampleTree().GetSubtree(context.Background(), 77)
	require.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestPredicateSQL(t *testing.T) {
	clause, args := Predicate{Scope: ScopeSelf, OwnerID: 5}.SQL("t.owner_id", "t.dept_id", 2)
	require.Equal(t, "t.owner_id = $3", clause)
	require.Equal(t, []any{int64(5)}, args)

	clause, args = Predicate{Scope: ScopeCustom, DeptIDs: []int64{1, 2}}.SQL("owner_id", "dept_id", 0)
	require.Equal(t, "dept_id = ANY($1)", clause)
	require.Equal(t, []any{[]int64{1, 2}}, args)

	clause, _ = Predicate{Scope: ScopeAll, Unrestricted: true}.SQL("owner_id", "dept_id", 0)
	require.Equal(t, "TRUE", clause)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope(" Department_And_Below ")
	require.NoError(t, err)
	require.Equal(t, ScopeDepartmentAndBelow, s)

	_, err = ParseScope("")
	require.ErrorIs(t, err, shared.ErrConfiguration)
}
