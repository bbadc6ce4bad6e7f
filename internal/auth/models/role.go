package models

// Role is the internal, closed role model every provider's claims are
// normalized into. Raw provider strings never reach authorization checks.
type Role string

const (
	// RoleAdmin is the single elevated role.
	RoleAdmin Role = "admin"
	// RoleStaff covers internal operators without administrative rights.
	RoleStaff Role = "staff"
	// RoleCustomer covers members of external customer organizations.
	RoleCustomer Role = "customer"
	// RoleViewer is the non-privileged default for anything unmapped.
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer:   0,
	RoleCustomer: 1,
	RoleStaff:    2,
	RoleAdmin:    3,
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// IsElevated reports whether r grants administrative privileges.
func (r Role) IsElevated() bool {
	return r == RoleAdmin
}

// Rank orders roles by privilege; invalid roles rank below every valid one.
func (r Role) Rank() int {
	if rank, ok := roleRank[r]; ok {
		return rank
	}
	return -1
}

func (r Role) String() string {
	return string(r)
}
