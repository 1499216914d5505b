package auth

// Role identifies the access tier of an admin user.
type Role string

const (
	RoleEditor     Role = "editor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Permission is a fine-grained capability key.
type Permission string

const (
	PermContentRead     Permission = "content:read"
	PermContentCreate   Permission = "content:create"
	PermContentUpdate   Permission = "content:update"
	PermContentDelete   Permission = "content:delete"
	PermContentPublish  Permission = "content:publish"
	PermContentRollback Permission = "content:rollback"

	PermAdminRead   Permission = "admin:read"
	PermAdminCreate Permission = "admin:create"
	PermAdminUpdate Permission = "admin:update"
	PermAdminDelete Permission = "admin:delete"

	PermAuditRead Permission = "audit:read"

	PermVersionRead    Permission = "version:read"
	PermVersionRestore Permission = "version:restore"
)

// AllPermissions lists every capability known to the system.
var AllPermissions = []Permission{
	PermContentRead, PermContentCreate, PermContentUpdate, PermContentDelete,
	PermContentPublish, PermContentRollback,
	PermAdminRead, PermAdminCreate, PermAdminUpdate, PermAdminDelete,
	PermAuditRead,
	PermVersionRead, PermVersionRestore,
}

// roleLevels gives the total order editor < admin < super_admin.
var roleLevels = map[Role]int{
	RoleEditor:     1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

var rolePermissions = map[Role][]Permission{
	RoleEditor: {
		PermContentRead, PermContentCreate, PermContentUpdate,
		PermVersionRead,
	},
	RoleAdmin: {
		PermContentRead, PermContentCreate, PermContentUpdate, PermContentDelete,
		PermContentPublish, PermContentRollback,
		PermAdminRead,
		PermAuditRead,
		PermVersionRead, PermVersionRestore,
	},
	RoleSuperAdmin: AllPermissions,
}

// ValidRole reports whether role is one of the known tiers.
func ValidRole(role Role) bool {
	_, ok := roleLevels[role]
	return ok
}

// HasPermission reports whether role grants perm. Unknown roles grant nothing.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role grants every listed permission.
func HasAllPermissions(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether role grants at least one listed permission.
func HasAnyPermission(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// IsRoleAtLeast reports whether role sits at or above required in the hierarchy.
func IsRoleAtLeast(role, required Role) bool {
	rl, ok := roleLevels[role]
	if !ok {
		return false
	}
	tl, ok := roleLevels[required]
	if !ok {
		return false
	}
	return rl >= tl
}

// CanManageRole reports whether a manager may create or modify users holding
// target. Super admins manage any role, admins manage only editors, editors
// manage none.
func CanManageRole(manager, target Role) bool {
	switch manager {
	case RoleSuperAdmin:
		return ValidRole(target)
	case RoleAdmin:
		return target == RoleEditor
	default:
		return false
	}
}
