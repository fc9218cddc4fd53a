package auth

import (
	"github.com/artpar/panel/internal/core/domain"
)

// =============================================================================
// Server Authorization
// =============================================================================

// CanViewServer checks if the actor can see a server.
// Owners see their own servers; admins see every server.
func CanViewServer(actor Actor, server domain.Server) bool {
	if !actor.Authenticated {
		return false
	}
	return actor.IsAdmin() || server.OwnedBy(actor.UserID)
}

// CanManageServer checks if the actor can run power actions, change credentials
// or delete the server.
func CanManageServer(actor Actor, server domain.Server) bool {
	return CanViewServer(actor, server)
}

// CanOverrideStatus checks if the actor can force internal transitions
// (suspend, unsuspend, fail, recover, confirm provisioning).
func CanOverrideStatus(actor Actor) bool {
	return actor.IsAdmin()
}

// CanAllocateFor checks if the actor can allocate a server owned by userID.
// Customers may only allocate for themselves.
func CanAllocateFor(actor Actor, userID string) bool {
	if !actor.Authenticated {
		return false
	}
	return actor.IsAdmin() || actor.UserID == userID
}

// CanListFor checks if the actor can list servers owned by userID.
func CanListFor(actor Actor, userID string) bool {
	return CanAllocateFor(actor, userID)
}
