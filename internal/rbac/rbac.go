package rbac

import "github.com/ledger-market/backend/internal/models"

// Permission constants
const (
	PermPlaceOrder     = "place_order"
	PermManageProducts = "manage_products"
	PermShipOrder      = "ship_order"
	PermOpenDispute    = "open_dispute"
	PermRequestPayout  = "request_payout"
	PermTransfer       = "transfer"
	PermIssueRefund    = "issue_refund"
	PermResolveDispute = "resolve_dispute"
	PermAdjustWallet   = "adjust_wallet"
	PermReadAudit      = "read_audit"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	models.RoleBuyer: {
		PermPlaceOrder, PermOpenDispute, PermTransfer,
	},
	models.RoleSeller: {
		PermPlaceOrder, PermOpenDispute, PermTransfer,
		PermManageProducts, PermShipOrder, PermRequestPayout,
	},
	models.RoleAdmin: {
		PermManageProducts, PermShipOrder, PermTransfer,
		PermIssueRefund, PermResolveDispute, PermAdjustWallet, PermReadAudit,
		// Admin CANNOT: PermPlaceOrder, PermRequestPayout
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

// IsFinancialOperation reports whether permission moves money on someone else's behalf (admin-only).
func IsFinancialOperation(permission string) bool {
	return permission == PermIssueRefund || permission == PermAdjustWallet || permission == PermResolveDispute
}
