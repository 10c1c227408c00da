package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

type staticCatalog []rbac.Permission

func (s staticCatalog) ListPermissions(context.Context) ([]rbac.Permission, error) {
	return s, nil
}

func parent(id int64) *int64 { return &id }

func TestCheckCatalogReportsShape(t *testing.T) {
	catalog := staticCatalog{
		{ID: 1, Code: "system:view", Kind: rbac.KindMenu, Enabled: true},
		{ID: 2, Code: "user:list", Kind: rbac.KindMenu, ParentID: parent(1), Enabled: true},
		{ID: 3, Code: "user:edit", Kind: rbac.KindButton, ParentID: parent(2), Enabled: true},
		{ID: 4, Code: "log:list", Kind: rbac.KindMenu, ParentID: parent(1), Enabled: false},
	}
	report, err := CheckCatalog(context.Background(), catalog)
	require.NoError(t, err)
	require.Equal(t, 1, report.Roots)
	require.Equal(t, 2, report.Menus)
	require.Equal(t, 1, report.Actions)
	require.Equal(t, []string{"log:list"}, report.Disabled)
}

func TestCheckCatalogRejectsCycle(t *testing.T) {
	catalog := staticCatalog{
		{ID: 1, Code: "a:view", Kind: rbac.KindMenu, ParentID: parent(2), Enabled: true},
		{ID: 2, Code: "b:view", Kind: rbac.KindMenu, ParentID: parent(1), Enabled: true},
	}
	_, err := CheckCatalog(context.Background(), catalog)
	require.True(t, errors.Is(err, shared.ErrConfiguration))
}
