package entity

// Role is the closed set of account roles. Assigned at registration and
// immutable afterwards outside of administrative tooling.
type Role string

const (
	RoleResearcher Role = "Researcher"
	RoleTechnician Role = "Technician"
	RoleAdmin      Role = "Admin"
)

// SelfRegisterable reports whether the role may be chosen at registration.
// Admin accounts are provisioned by the seed tool only.
func (r Role) SelfRegisterable() bool {
	return r == RoleResearcher || r == RoleTechnician
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleResearcher, RoleTechnician, RoleAdmin:
		return true
	}
	return false
}
