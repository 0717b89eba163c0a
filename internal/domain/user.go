package domain

// Role is the permission level of an authenticated principal.
type Role string

// Roles.
const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleAdmin:  2,
}

// HasPermission reports whether the role is at least minRole.
func (r Role) HasPermission(minRole Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[minRole]
}

// Admin is the configured administrator principal.
type Admin struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
