package models

type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleSuperAdmin UserRole = "super-admin"
	RoleStudent    UserRole = "student"
)

func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin, RoleStudent:
		return true
	}
	return false
}

func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}
