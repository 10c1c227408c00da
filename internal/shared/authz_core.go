package shared

// Core platform permissions.
const (
	PermUserList = "user:list"
	PermUserEdit = "user:edit"

	PermRoleList = "role:list"
	PermRoleEdit = "role:edit"

	PermDeptList = "dept:list"
	PermDeptEdit = "dept:edit"

	PermPermissionList = "permission:list"

	PermDictList   = "dict:list"
	PermNoticeList = "notice:list"
	PermLogList    = "log:list"

	PermJobList = "job:list"
	PermJobRun  = "job:run"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUserList,
		PermUserEdit,
		PermRoleList,
		PermRoleEdit,
		PermDeptList,
		PermDeptEdit,
		PermPermissionList,
		PermDictList,
		PermNoticeList,
		PermLogList,
		PermJobList,
		PermJobRun,
	}
}
