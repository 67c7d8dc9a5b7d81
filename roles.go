package accounts

import "strings"

var roleRank = map[UserRole]int{
	RoleGuest:  0,
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// IsValidRole checks a role string against the known roles.
func IsValidRole(role UserRole) bool {
	_, ok := roleRank[role]
	return ok
}

// ParseRole normalizes a role string, falling back to guest for unknown
// values rather than failing: a bad role grants less access, never more.
func ParseRole(raw string) UserRole {
	role := UserRole(strings.ToLower(strings.TrimSpace(raw)))
	if IsValidRole(role) {
		return role
	}
	return RoleGuest
}

// RoleAtLeast reports whether role grants at least the access of min.
func RoleAtLeast(role, min UserRole) bool {
	return roleRank[role] >= roleRank[min]
}
