package auth

import "errors"

// Role is the access level carried in a dashboard token.
type Role string

const (
	// RoleViewer may read history and watch live events.
	RoleViewer Role = "viewer"

	// RoleOperator may also send messages, place calls and run codes.
	RoleOperator Role = "operator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

var (
	ErrTokenInvalid  = errors.New("invalid token")
	ErrForbidden     = errors.New("insufficient permissions")
	ErrInvalidSecret = errors.New("signing secret is empty")
)
