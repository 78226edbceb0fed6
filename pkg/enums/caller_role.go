package enums

import "fmt"

// CallerRole is the `role` claim carried by bearer tokens.
type CallerRole string

const (
	CallerRoleService CallerRole = "service_role"
	CallerRoleAdmin   CallerRole = "admin"
)

var validCallerRoles = []CallerRole{
	CallerRoleService,
	CallerRoleAdmin,
}

// String implements fmt.Stringer.
func (r CallerRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a role allowed to call the API.
func (r CallerRole) IsValid() bool {
	for _, candidate := range validCallerRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseCallerRole converts raw input into a CallerRole.
func ParseCallerRole(value string) (CallerRole, error) {
	for _, candidate := range validCallerRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid caller role %q", value)
}
