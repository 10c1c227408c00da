package rbac

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

var permissionCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*(:[a-z][a-z0-9_-]*)+$`)

// ValidCode reports whether code follows the module:action format.
func ValidCode(code string) bool {
	return permissionCodePattern.MatchString(code)
}

// MenuNode is a navigable entry of the menu forest.
type MenuNode struct {
	Permission
	Children []*MenuNode `json:"children,omitempty"`
}

// Tree is the built catalog: the menu forest plus button actions keyed by
// the id of the node they hang under.
type Tree struct {
	Menus   []*MenuNode            `json:"menus"`
	Actions map[int64][]Permission `json:"actions"`
}

// ActionsFor returns the button actions attached to parent.
func (t Tree) ActionsFor(parentID int64) []Permission {
	return t.Actions[parentID]
}

// BuildTree assembles the menu forest from a flat permission list.
// Self-parented nodes, cycles, orphans and duplicate codes are rejected with
// shared.ErrConfiguration. Disabled nodes are dropped together with their subtree.
func BuildTree(flat []Permission) (Tree, error) {
	byID := make(map[int64]Permission, len(flat))
	codes := make(map[string]int64, len(flat))
	for _, p := range flat {
		if _, dup := byID[p.ID]; dup {
			return Tree{}, fmt.Errorf("%w: duplicate permission id %d", shared.ErrConfiguration, p.ID)
		}
		if !ValidCode(p.Code) {
			return Tree{}, fmt.Errorf("%w: malformed permission code %q", shared.ErrConfiguration, p.Code)
		}
		if other, dup := codes[p.Code]; dup {
			return Tree{}, fmt.Errorf("%w: permission code %q used by %d and %d", shared.ErrConfiguration, p.Code, other, p.ID)
		}
		byID[p.ID] = p
		codes[p.Code] = p.ID
	}

	for _, p := range flat {
		if err := checkAncestry(p, byID); err != nil {
			return Tree{}, err
		}
	}

	children := make(map[int64][]Permission)
	var roots []Permission
	for _, p := range flat {
		if p.ParentID == nil {
			roots = append(roots, p)
			continue
		}
		children[*p.ParentID] = append(children[*p.ParentID], p)
	}

	tree := Tree{Actions: make(map[int64][]Permission)}
	visited := make(map[int64]bool, len(flat))
	for _, root := range sortPermissions(roots) {
		if !root.Enabled {
			continue
		}
		if root.Kind == KindButton {
			return Tree{}, fmt.Errorf("%w: button %q has no parent", shared.ErrConfiguration, root.Code)
		}
		tree.Menus = append(tree.Menus, attach(root, children, &tree, visited))
	}
	return tree, nil
}

func attach(p Permission, children map[int64][]Permission, tree *Tree, visited map[int64]bool) *MenuNode {
	visited[p.ID] = true
	node := &MenuNode{Permission: p}
	for _, child := range sortPermissions(children[p.ID]) {
		if !child.Enabled || visited[child.ID] {
			continue
		}
		if child.Kind == KindButton {
			visited[child.ID] = true
			tree.Actions[p.ID] = append(tree.Actions[p.ID], child)
			continue
		}
		node.Children = append(node.Children, attach(child, children, tree, visited))
	}
	return node
}

// checkAncestry walks parent links from p and fails on a missing parent or on
// revisiting a node.
func checkAncestry(p Permission, byID map[int64]Permission) error {
	seen := map[int64]bool{p.ID: true}
	current := p
	for current.ParentID != nil {
		parentID := *current.ParentID
		if parentID == current.ID {
			return fmt.Errorf("%w: permission %q is its own parent", shared.ErrConfiguration, current.Code)
		}
		parent, ok := byID[parentID]
		if !ok {
			return fmt.Errorf("%w: permission %q references missing parent %d", shared.ErrConfiguration, current.Code, parentID)
		}
		if seen[parentID] {
			return fmt.Errorf("%w: permission %q is part of a parent cycle", shared.ErrConfiguration, p.Code)
		}
		if parent.Kind == KindButton {
			return fmt.Errorf("%w: permission %q hangs under button %q", shared.ErrConfiguration, current.Code, parent.Code)
		}
		seen[parentID] = true
		current = parent
	}
	return nil
}

func sortPermissions(in []Permission) []Permission {
	out := make([]Permission, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}
