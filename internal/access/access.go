// Package access holds the stateless authorization predicates shared by the
// services. Every function is a pure decision over snapshots of the actor and
// the target.
package access

import (
	"github.com/ovaphlow/worknest/service-core-go/internal/apperr"
	orgentity "github.com/ovaphlow/worknest/service-core-go/internal/organization/entity"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

// HasOrgAccess reports whether actor may read org. Membership through the
// user's own organization reference counts even when the member list
// disagrees; see MembershipDiverged.
func HasOrgAccess(org *orgentity.Organization, actor *userentity.User) bool {
	if org == nil || actor == nil {
		return false
	}
	if actor.Role == userentity.RoleSuperadmin || org.IsOwner(actor.ID) {
		return true
	}
	if org.Member(actor.ID) != nil {
		return true
	}
	return actor.InOrganization(org.ID)
}

// MembershipDiverged reports the case where actor points at org but is not in
// its member list.
func MembershipDiverged(org *orgentity.Organization, actor *userentity.User) bool {
	return org != nil && actor != nil && actor.InOrganization(org.ID) && org.Member(actor.ID) == nil
}

// CanManageOrg: superadmin or owner.
func CanManageOrg(org *orgentity.Organization, actor *userentity.User) bool {
	if org == nil || actor == nil {
		return false
	}
	return actor.Role == userentity.RoleSuperadmin || org.IsOwner(actor.ID)
}

// CanEditOrg widens CanManageOrg to admins of the organization.
func CanEditOrg(org *orgentity.Organization, actor *userentity.User) bool {
	if CanManageOrg(org, actor) {
		return true
	}
	return actor != nil && actor.Role == userentity.RoleAdmin && actor.InOrganization(org.ID)
}

// CanViewInvites: superadmin, owner, or admin/hr of the organization.
func CanViewInvites(org *orgentity.Organization, actor *userentity.User) bool {
	if CanManageOrg(org, actor) {
		return true
	}
	if actor == nil || !actor.InOrganization(org.ID) {
		return false
	}
	return actor.Role == userentity.RoleAdmin || actor.Role == userentity.RoleHR
}

// AssignableRoles lists the roles actor may grant.
func AssignableRoles(actor userentity.Role) []userentity.Role {
	switch actor {
	case userentity.RoleSuperadmin:
		return []userentity.Role{userentity.RoleEmployee, userentity.RoleHR, userentity.RoleAdmin, userentity.RoleSuperadmin}
	case userentity.RoleAdmin:
		return []userentity.Role{userentity.RoleEmployee, userentity.RoleHR, userentity.RoleAdmin}
	case userentity.RoleHR:
		return []userentity.Role{userentity.RoleEmployee, userentity.RoleHR}
	}
	return nil
}

// CanAssignRole reports whether actor may grant role.
func CanAssignRole(actor, role userentity.Role) bool {
	for _, r := range AssignableRoles(actor) {
		if r == role {
			return true
		}
	}
	return false
}

// CheckAssignRole returns NotAuthorized when actor may not grant role.
func CheckAssignRole(actor *userentity.User, role userentity.Role) error {
	if actor == nil || !CanAssignRole(actor.Role, role) {
		return apperr.NotAuthorized("You are not allowed to assign the " + string(role) + " role")
	}
	return nil
}

// CheckUserTarget applies the rules for acting on another user's account
// through an administrative path: never self, superadmin anywhere, admin and
// hr only inside their own organization, hr never on admins, and nobody but a
// superadmin on a superadmin.
func CheckUserTarget(actor, target *userentity.User) error {
	if actor == nil || target == nil {
		return apperr.NotAuthorized("Not authorized")
	}
	if actor.ID == target.ID {
		return apperr.NotAuthorized("You cannot perform this action on your own account")
	}
	if actor.Role == userentity.RoleSuperadmin {
		return nil
	}
	if actor.Role != userentity.RoleAdmin && actor.Role != userentity.RoleHR {
		return apperr.NotAuthorized("Not authorized to manage users")
	}
	if target.Role == userentity.RoleSuperadmin {
		return apperr.NotAuthorized("Only superadmin can modify superadmin accounts")
	}
	if actor.OrganizationID == nil || !target.InOrganization(*actor.OrganizationID) {
		return apperr.NotAuthorized("You can only manage users in your organization")
	}
	if actor.Role == userentity.RoleHR && target.Role == userentity.RoleAdmin {
		return apperr.NotAuthorized("HR cannot manage admin accounts")
	}
	return nil
}

// CheckInvite decides whether actor may invite someone into org at role.
func CheckInvite(org *orgentity.Organization, actor *userentity.User, role userentity.Role) error {
	if !role.IsMemberRole() {
		return apperr.Field("role", "Valid role is required (employee, hr, admin)")
	}
	if CanManageOrg(org, actor) {
		return nil
	}
	if actor == nil || !actor.InOrganization(org.ID) {
		return apperr.NotAuthorized("Only organization admin, hr, or superadmin can invite members")
	}
	switch actor.Role {
	case userentity.RoleAdmin:
		return nil
	case userentity.RoleHR:
		if role != userentity.RoleEmployee {
			return apperr.NotAuthorized("HR can only invite employees")
		}
		return nil
	}
	return apperr.NotAuthorized("Only organization admin, hr, or superadmin can invite members")
}
