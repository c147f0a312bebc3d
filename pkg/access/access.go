// Package access holds the authorization predicates checked before any
// store access.
package access

import (
	"dealerchat/pkg/apperr"
	"dealerchat/pkg/auth"
	"dealerchat/pkg/models"
)

var (
	errUnauthenticated = apperr.New(apperr.Unauthenticated, "authentication required")
	errForbidden       = apperr.New(apperr.Forbidden, "forbidden")
)

// CanReadChat: admins, the owning customer, or the assigned manager.
func CanReadChat(u *auth.Identity, c models.Chat) bool {
	if u == nil {
		return false
	}
	if u.Role == models.RoleAdmin || u.ID == c.CustomerID {
		return true
	}
	return c.ManagerID != "" && u.ID == c.ManagerID
}

// CanWriteChat: admins always; customers only their own chat; managers
// only the chat assigned to them.
func CanWriteChat(u *auth.Identity, c models.Chat) bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case models.RoleAdmin:
		return true
	case models.RoleManager:
		return c.ManagerID != "" && c.ManagerID == u.ID
	case models.RoleClient:
		return c.CustomerID == u.ID
	}
	return false
}

func CanManageLeads(u *auth.Identity) bool { return u.IsStaff() }

func CanAssign(u *auth.Identity) bool { return u.IsAdmin() }

// CanReadLead: the owning customer or any staff member.
func CanReadLead(u *auth.Identity, l models.Lead) bool {
	if u == nil {
		return false
	}
	return u.IsStaff() || u.ID == l.CustomerID
}

// CanSubscribeNotifications: a user's own stream, or any stream for admins.
func CanSubscribeNotifications(u *auth.Identity, userID string) bool {
	if u == nil {
		return false
	}
	return u.IsAdmin() || (userID != "" && userID == u.ID)
}

// CanSubscribeLeads: customers their own leads, staff any customer or all.
func CanSubscribeLeads(u *auth.Identity, customerID string) bool {
	if u == nil {
		return false
	}
	return u.IsStaff() || (customerID != "" && customerID == u.ID)
}

// Require turns a predicate result into the taxonomy error: nil identity
// is Unauthenticated, a false check is Forbidden.
func Require(u *auth.Identity, ok bool) error {
	if u == nil {
		return errUnauthenticated
	}
	if !ok {
		return errForbidden
	}
	return nil
}

// Authenticated fails with Unauthenticated when u is nil.
func Authenticated(u *auth.Identity) error {
	return Require(u, true)
}
