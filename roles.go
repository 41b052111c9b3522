package identity

// AccountRole is an account's primary role
type AccountRole = string

const (
	// RoleClient is the default role every self-registered passenger gets
	RoleClient AccountRole = "client"
	// RoleEmployee is airline staff (check-in, gate operations)
	RoleEmployee AccountRole = "employee"
	// RoleAdmin can manage accounts and assign roles
	RoleAdmin AccountRole = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r AccountRole) bool {
	switch r {
	case RoleClient, RoleEmployee, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into an AccountRole
func ParseRole(roleStr string) (AccountRole, bool) {
	role := AccountRole(roleStr)
	return role, IsValidRole(role)
}

// IsAtLeast checks if the role meets the minimum required level
func IsAtLeast(r, minRole AccountRole) bool {
	roleHierarchy := map[AccountRole]int{
		RoleClient:   0,
		RoleEmployee: 1,
		RoleAdmin:    2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns the predefined roles in hierarchical order
func AllRoles() []AccountRole {
	return []AccountRole{
		RoleClient,
		RoleEmployee,
		RoleAdmin,
	}
}
