package auth

// UserRole is the user's role
type UserRole string

const (
	// RoleAdmin can manage users and publish resources
	RoleAdmin UserRole = "admin"
	// RoleUser is the default role for registered and federated accounts
	RoleUser UserRole = "user"
	// RoleDisabled blocks every authenticated operation
	RoleDisabled UserRole = "disabled"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleDisabled:
		return true
	default:
		return false
	}
}

// CanAuthenticate reports whether a session may be issued or honored for this role.
func (r UserRole) CanAuthenticate() bool {
	return r == RoleAdmin || r == RoleUser
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleAdmin,
		RoleUser,
		RoleDisabled,
	}
}

// ParseRole safely parses a string into a UserRole type.
// An empty string resolves to the least privileged role.
func ParseRole(roleStr string) (UserRole, bool) {
	if roleStr == "" {
		return RoleUser, true
	}
	role := UserRole(roleStr)
	return role, role.IsValid()
}
