package datascope

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// PGRepository reads the department tree from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// UNION (not UNION ALL) drops revisited rows, so a malformed parent cycle
// terminates instead of recursing forever.
const subtreeQuery = `
WITH RECURSIVE subtree AS (
	SELECT id FROM departments WHERE id = $1
	UNION
	SELECT d.id FROM departments d JOIN subtree s ON d.parent_id = s.id
)
SELECT id FROM subtree ORDER BY id`

// GetSubtree returns deptID and all transitive descendants.
func (r *PGRepository) GetSubtree(ctx context.Context, deptID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, subtreeQuery, deptID)
	if err != nil {
		return nil, fmt.Errorf("datascope: query subtree: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("datascope: scan subtree: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("department %d: %w", deptID, shared.ErrNotFound)
	}
	return ids, nil
}

// ListDepartments loads the whole tree, used to build an in-memory Tree.
func (r *PGRepository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, parent_id FROM departments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("datascope: list departments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Department, error) {
		var d Department
		err := row.Scan(&d.ID, &d.ParentID)
		return d, err
	})
}

var _ DepartmentRepository = (*PGRepository)(nil)
