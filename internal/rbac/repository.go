package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-admin/internal/datascope"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// PGRepository implements the role and permission repositories on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const assignmentQuery = `
SELECT u.id, r.code, COALESCE(u.dept_id, 0)
FROM users u
JOIN user_roles ur ON ur.user_id = u.id
JOIN roles r ON r.id = ur.role_id
WHERE u.id = $1 AND u.is_active
LIMIT 1`

// GetAssignment fetches the role code and department of an active user.
func (r *PGRepository) GetAssignment(ctx context.Context, userID int64) (UserAssignment, error) {
	var a UserAssignment
	err := r.pool.QueryRow(ctx, assignmentQuery, userID).Scan(&a.UserID, &a.RoleCode, &a.DeptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAssignment{}, shared.ErrNotFound
		}
		return UserAssignment{}, fmt.Errorf("rbac: load assignment: %w", err)
	}
	return a, nil
}

const roleForUserQuery = `
SELECT r.id, r.code, r.name, r.data_scope
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = $1
LIMIT 1`

// GetRoleForUser loads the role attached to userID with its permissions and
// custom departments.
func (r *PGRepository) GetRoleForUser(ctx context.Context, userID int64) (Role, error) {
	var (
		role  Role
		scope string
	)
	err := r.pool.QueryRow(ctx, roleForUserQuery, userID).Scan(&role.ID, &role.Code, &role.Name, &scope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, fmt.Errorf("rbac: load role: %w", err)
	}
	parsed, err := datascope.ParseScope(scope)
	if err != nil {
		return Role{}, err
	}
	role.DataScope = parsed

	if role.Permissions, err = r.GetPermissionsForRole(ctx, role.Code); err != nil {
		return Role{}, err
	}
	if parsed == datascope.ScopeCustom {
		rows, err := r.pool.Query(ctx, `SELECT dept_id FROM role_departments WHERE role_id = $1 ORDER BY dept_id`, role.ID)
		if err != nil {
			return Role{}, fmt.Errorf("rbac: load role departments: %w", err)
		}
		role.CustomDeptIDs, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return Role{}, fmt.Errorf("rbac: scan role departments: %w", err)
		}
	}
	return role, nil
}

const rolePermissionsQuery = `
SELECT p.code
FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
JOIN roles r ON r.id = rp.role_id
WHERE r.code = $1 AND p.enabled`

// GetPermissionsForRole returns the enabled permission codes attached to roleCode.
func (r *PGRepository) GetPermissionsForRole(ctx context.Context, roleCode string) (shared.PermissionSet, error) {
	rows, err := r.pool.Query(ctx, rolePermissionsQuery, roleCode)
	if err != nil {
		return nil, fmt.Errorf("rbac: load role permissions: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("rbac: scan role permissions: %w", err)
	}
	return shared.NewPermissionSet(codes...), nil
}

// ListPermissions returns the whole catalog.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, parent_id, kind, sort_order, enabled FROM permissions ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Permission, error) {
		var (
			p    Permission
			kind string
		)
		if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.ParentID, &kind, &p.Order, &p.Enabled); err != nil {
			return Permission{}, err
		}
		p.Kind = PermissionKind(kind)
		return p, nil
	})
}

var (
	_ RoleRepository       = (*PGRepository)(nil)
	_ PermissionRepository = (*PGRepository)(nil)
)
