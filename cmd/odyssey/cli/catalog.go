package cli

import (
	"context"
	"sort"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

// CatalogSource lists the flat permission catalog.
type CatalogSource interface {
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
}

// CatalogReport summarises a validated catalog.
type CatalogReport struct {
	Roots    int      `json:"roots"`
	Menus    int      `json:"menus"`
	Actions  int      `json:"actions"`
	Disabled []string `json:"disabled,omitempty"`
}

// CheckCatalog builds the permission tree and reports its shape. Malformed
// codes, duplicates, orphans and cycles come back as configuration errors.
func CheckCatalog(ctx context.Context, source CatalogSource) (CatalogReport, error) {
	flat, err := source.ListPermissions(ctx)
	if err != nil {
		return CatalogReport{}, err
	}
	tree, err := rbac.BuildTree(flat)
	if err != nil {
		return CatalogReport{}, err
	}
	report := CatalogReport{Roots: len(tree.Menus)}
	var walk func(nodes []*rbac.MenuNode)
	walk = func(nodes []*rbac.MenuNode) {
		for _, n := range nodes {
			report.Menus++
			walk(n.Children)
		}
	}
	walk(tree.Menus)
	for _, actions := range tree.Actions {
		report.Actions += len(actions)
	}
	for _, p := range flat {
		if !p.Enabled {
			report.Disabled = append(report.Disabled, p.Code)
		}
	}
	sort.Strings(report.Disabled)
	return report, nil
}
