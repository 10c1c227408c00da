package rbac

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-admin/internal/datascope"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

type denialCounter map[string]int

func (d denialCounter) RecordDenial(code string) { d[code]++ }

func newTestMiddleware(t *testing.T, rec DenialRecorder) Middleware {
	t.Helper()
	return Middleware{
		Evaluator: newEvaluator(t, nil),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder:  rec,
	}
}

func serveWith(mw func(http.Handler) http.Handler, p *shared.Principal) *httptest.ResponseRecorder {
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	if p != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), *p))
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestRequirePermission(t *testing.T) {
	denials := denialCounter{}
	mw := newTestMiddleware(t, denials)

	rr := serveWith(mw.RequirePermission("user:list"), nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	viewer := shared.Principal{UserID: 2, RoleCode: "viewer", Permissions: shared.NewPermissionSet("user:list")}
	rr = serveWith(mw.RequirePermission("user:list"), &viewer)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = serveWith(mw.RequirePermission("user:edit"), &viewer)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, 1, denials["user:edit"])

	admin := shared.Principal{UserID: 1, RoleCode: "superadmin"}
	rr = serveWith(mw.RequirePermission("user:edit"), &admin)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRequireAnyNormalizesAndSkipsEmpty(t *testing.T) {
	mw := newTestMiddleware(t, nil)
	viewer := shared.Principal{UserID: 2, RoleCode: "viewer", Permissions: shared.NewPermissionSet("role:list")}

	rr := serveWith(mw.RequireAny(" USER:LIST ", "role:list", "user:list"), &viewer)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = serveWith(mw.RequireAny(" ", ""), nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	require.Equal(t, []string{"user:list", "role:list"}, normalizePermissions([]string{" USER:LIST ", "role:list", "user:list"}))
}

func TestConfigurationErrorIsForbiddenWithoutDetail(t *testing.T) {
	mw := newTestMiddleware(t, nil)
	viewer := shared.Principal{UserID: 2, RoleCode: "viewer"}
	rr := serveWith(mw.RequirePermission("no-separator"), &viewer)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.NotContains(t, rr.Body.String(), "no-separator")
}

type memoryRoles struct {
	assignments map[int64]UserAssignment
	roles       map[int64]Role
}

func (m memoryRoles) GetAssignment(_ context.Context, userID int64) (UserAssignment, error) {
	a, ok := m.assignments[userID]
	if !ok {
		return UserAssignment{}, shared.ErrNotFound
	}
	return a, nil
}

func (m memoryRoles) GetRoleForUser(_ context.Context, userID int64) (Role, error) {
	r, ok := m.roles[userID]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

type memoryPermissions struct {
	byRole  map[string]shared.PermissionSet
	catalog []Permission
}

func (m memoryPermissions) GetPermissionsForRole(_ context.Context, role string) (shared.PermissionSet, error) {
	return m.byRole[role], nil
}

func (m memoryPermissions) ListPermissions(context.Context) ([]Permission, error) {
	return m.catalog, nil
}

func TestServiceLoadPrincipal(t *testing.T) {
	svc := NewService(
		memoryRoles{assignments: map[int64]UserAssignment{7: {UserID: 7, RoleCode: "editor", DeptID: 3}}},
		memoryPermissions{byRole: map[string]shared.PermissionSet{"editor": shared.NewPermissionSet("user:list")}},
	)
	p, err := svc.LoadPrincipal(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(3), p.DeptID)
	require.True(t, p.HasPermission("user:list"))

	_, err = svc.LoadPrincipal(context.Background(), 8)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestPermissionTreeRouteRequiresPermissionList(t *testing.T) {
	svc := NewService(memoryRoles{}, memoryPermissions{catalog: []Permission{
		{ID: 1, Code: "system:menu", Kind: KindMenu, Enabled: true},
		{ID: 2, Code: "permission:list", ParentID: id(1), Kind: KindMenu, Enabled: true},
	}})
	mw := newTestMiddleware(t, nil)
	handler := NewPermissionsHandler(mw.Logger, svc, nil, mw)
	router := chi.NewRouter()
	handler.MountRoutes(router)

	call := func(p shared.Principal) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/tree", nil)
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := call(shared.Principal{UserID: 3, RoleCode: "viewer"})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(shared.Principal{UserID: 1, RoleCode: "superadmin"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"permission:list"`)
}

func TestScopeUsesCurrentDepartmentOverTokenHint(t *testing.T) {
	svc := NewService(memoryRoles{
		assignments: map[int64]UserAssignment{7: {UserID: 7, RoleCode: "editor", DeptID: 5}},
		roles:       map[int64]Role{7: {Code: "editor", DataScope: datascope.ScopeDepartmentAndBelow}},
	}, memoryPermissions{})
	departments := datascope.NewTree([]datascope.Department{
		{ID: 1},
		{ID: 3, ParentID: id(1)},
		{ID: 5, ParentID: id(1)},
		{ID: 6, ParentID: id(5)},
	})
	mw := newTestMiddleware(t, nil)
	router := chi.NewRouter()
	NewPermissionsHandler(mw.Logger, svc, datascope.NewResolver(departments), mw).MountRoutes(router)

	// the access token still carries the department the user was moved out of
	req := httptest.NewRequest(http.MethodGet, "/scope", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 7, RoleCode: "editor", DeptID: 3}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"dept_ids":[5,6]`)
}
