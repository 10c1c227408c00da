package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

type stubRoleSource struct {
	perms map[string]shared.PermissionSet
	err   error
}

func (s stubRoleSource) GetPermissionsForRole(_ context.Context, role string) (shared.PermissionSet, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.perms[role], nil
}

func newEvaluator(t *testing.T, src RolePermissionSource) *Evaluator {
	t.Helper()
	e, err := NewEvaluator("superadmin", NewPolicyResolver(), src)
	require.NoError(t, err)
	return e
}

func TestSuperAdminBypassesWithEmptyPermissionSet(t *testing.T) {
	e := newEvaluator(t, stubRoleSource{err: errors.New("db down")})
	p := shared.Principal{UserID: 1, RoleCode: "superadmin"}
	for _, code := range []string{"user:list", "anything:at-all", "not even valid"} {
		d := e.Authorize(context.Background(), p, code)
		require.True(t, d.Allowed, code)
		require.NoError(t, d.Err())
	}
}

func TestAuthorizeUsesRolePermissions(t *testing.T) {
	e := newEvaluator(t, stubRoleSource{perms: map[string]shared.PermissionSet{
		"auditor": shared.NewPermissionSet("log:list"),
	}})
	p := shared.Principal{UserID: 2, RoleCode: "auditor", Permissions: shared.NewPermissionSet("notice:list")}
	ctx := context.Background()

	require.True(t, e.Authorize(ctx, p, "log:list").Allowed)
	require.True(t, e.Authorize(ctx, p, "notice:list").Allowed)

	d := e.Authorize(ctx, p, "user:edit")
	require.False(t, d.Allowed)
	require.ErrorIs(t, d.Err(), shared.ErrForbidden)
}

func TestRoleLookupFailureContributesNothing(t *testing.T) {
	e := newEvaluator(t, stubRoleSource{err: errors.New("timeout")})
	p := shared.Principal{UserID: 3, RoleCode: "editor"}
	d := e.Authorize(context.Background(), p, "user:list")
	require.False(t, d.Allowed)
	require.ErrorIs(t, d.Err(), shared.ErrForbidden)
}

func TestOpenEndpointSkipsCheck(t *testing.T) {
	e := newEvaluator(t, nil)
	require.True(t, e.Authorize(context.Background(), shared.Principal{}, "").Allowed)
	require.True(t, e.AuthorizeAny(context.Background(), shared.Principal{}).Allowed)
}

func TestMalformedRequiredCodeFailsClosed(t *testing.T) {
	e := newEvaluator(t, nil)
	p := shared.Principal{UserID: 4, RoleCode: "editor", Permissions: shared.NewPermissionSet("Bad Code")}
	d := e.Authorize(context.Background(), p, "Bad Code")
	require.False(t, d.Allowed)
	require.ErrorIs(t, d.Err(), shared.ErrConfiguration)
}

func TestAuthorizeAny(t *testing.T) {
	e := newEvaluator(t, nil)
	p := shared.Principal{UserID: 5, RoleCode: "editor", Permissions: shared.NewPermissionSet("role:list")}
	require.True(t, e.AuthorizeAny(context.Background(), p, "user:list", "role:list").Allowed)

	d := e.AuthorizeAny(context.Background(), p, "user:list", "dept:list")
	require.False(t, d.Allowed)
	require.Equal(t, "user:list,dept:list", d.Code)
}

func TestNewEvaluatorRequiresSuperAdminRole(t *testing.T) {
	_, err := NewEvaluator("  ", nil, nil)
	require.ErrorIs(t, err, shared.ErrConfiguration)
}
