// ABOUTME: Closed Role enumeration and the role-hierarchy satisfaction check.
// ABOUTME: ParseRole is the only way to obtain a Role from external input.
package rbac

import "fmt"

// Role is an organization-scoped permission level. The zero value is not a
// valid role; construct roles via [ParseRole] or the exported constants.
type Role string

// The three roles, from least to most privileged. Stored verbatim in
// org_members.role and org_invitations.role (enforced by a CHECK constraint).
const (
	RoleMember Role = "member"
	RoleCoach  Role = "coach"
	RoleAdmin  Role = "admin"
)

// rolesSatisfying maps a required minimum role to the set of roles that meet
// it. Satisfaction is inclusive-upward: coach-level access is granted to
// coaches and admins, member-level access to everyone. A set lookup rather
// than an integer comparison keeps the table explicit when roles are added.
var rolesSatisfying = map[Role]map[Role]bool{
	RoleMember: {RoleMember: true, RoleCoach: true, RoleAdmin: true},
	RoleCoach:  {RoleCoach: true, RoleAdmin: true},
	RoleAdmin:  {RoleAdmin: true},
}

// Satisfies reports whether r meets the required minimum role min.
// Unknown roles on either side never satisfy anything.
func (r Role) Satisfies(min Role) bool {
	return rolesSatisfying[min][r]
}

// Valid reports whether r is one of the three defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleCoach, RoleAdmin:
		return true
	}
	return false
}

// String returns the stored form of the role.
func (r Role) String() string { return string(r) }

// ParseRole converts a role string to a Role. Unlike a raw conversion it
// rejects unknown values, so a bad string fails at the boundary instead of
// silently failing every permission check later.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
