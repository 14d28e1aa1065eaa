package domain

// Roles carried in access tokens.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the actor holds admin capability.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanView reports whether the actor may read o.
func (a Actor) CanView(o *Order) bool {
	return a.IsAdmin() || o.OwnedBy(a.UserID)
}
