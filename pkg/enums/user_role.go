package enums

import "fmt"

// UserRole identifies the actor tier resolved by the auth layer.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleFarmer   UserRole = "farmer"
	UserRoleStaff    UserRole = "staff"
	UserRoleAdmin    UserRole = "admin"
	UserRoleAgent    UserRole = "delivery-agent"
)

var validUserRoles = []UserRole{
	UserRoleCustomer,
	UserRoleFarmer,
	UserRoleStaff,
	UserRoleAdmin,
	UserRoleAgent,
}

// String implements fmt.Stringer.
func (u UserRole) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UserRole.
func (u UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == u {
			return true
		}
	}
	return false
}

// IsOperations reports whether the role belongs to the staff/admin tier.
func (u UserRole) IsOperations() bool {
	return u == UserRoleStaff || u == UserRoleAdmin
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
