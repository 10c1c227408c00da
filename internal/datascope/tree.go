package datascope

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// Tree is an in-memory department hierarchy.
type Tree struct {
	children map[int64][]int64
	known    map[int64]bool
}

// NewTree indexes depts by parent.
func NewTree(depts []Department) *Tree {
	t := &Tree{children: make(map[int64][]int64), known: make(map[int64]bool, len(depts))}
	for _, d := range depts {
		t.known[d.ID] = true
		if d.ParentID != nil {
			t.children[*d.ParentID] = append(t.children[*d.ParentID], d.ID)
		}
	}
	return t
}

// Descendants walks the tree breadth-first from root and returns every
// transitive descendant, each visited once. root itself is not included.
func (t *Tree) Descendants(root int64) []int64 {
	visited := map[int64]bool{root: true}
	queue := []int64{root}
	var out []int64
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range t.children[current] {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// GetSubtree satisfies DepartmentRepository.
func (t *Tree) GetSubtree(_ context.Context, deptID int64) ([]int64, error) {
	if !t.known[deptID] {
		return nil, fmt.Errorf("department %d: %w", deptID, shared.ErrNotFound)
	}
	return append([]int64{deptID}, t.Descendants(deptID)...), nil
}
