package auth

// Permission represents a named capability in the system.
type Permission string

const (
	PermHistoryRead    Permission = "history:read"
	PermEventsWatch    Permission = "events:watch"
	PermDeviceOperate  Permission = "device:operate"
	PermContactsManage Permission = "contacts:manage"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermHistoryRead,
		PermEventsWatch,
	},
	RoleOperator: {
		PermHistoryRead,
		PermEventsWatch,
		PermDeviceOperate,
		PermContactsManage,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
