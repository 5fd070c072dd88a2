package rbac

// Role constants
const (
	RoleGuardian = "guardian"
	RoleOperator = "operator"
)

// Permission constants
const (
	PermViewEscrow        = "view_escrow"
	PermApproveEscrow     = "approve_escrow"
	PermRetryRegistration = "retry_registration"
	PermCancelEscrow      = "cancel_escrow"
	PermManagePolicy      = "manage_policy"
	PermViewAudit         = "view_audit"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleGuardian: {
		PermViewEscrow, PermApproveEscrow,
	},
	RoleOperator: {
		PermViewEscrow, PermRetryRegistration, PermCancelEscrow, PermManagePolicy, PermViewAudit,
		// Operator CANNOT approve: approvals must come from guardian wallets.
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsOperatorOnly reports whether only operators hold permission.
func IsOperatorOnly(permission string) bool {
	return HasPermission(RoleOperator, permission) && !HasPermission(RoleGuardian, permission)
}
