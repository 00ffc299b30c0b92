package identity

import (
	"context"
	"time"
)

// Role is the two-level authorization role carried in access tokens.
type Role string

const (
	RoleStandard Role = "standard"
	RoleElevated Role = "elevated"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleElevated
}

// Account is sessiond's security principal.
type Account struct {
	ID           string
	Email        string
	EmailNorm    string
	DisplayName  string
	PasswordHash string
	Role         Role

	// Locked is reserved for a lockout policy; nothing in this service sets it.
	Locked bool

	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastActivityAt *time.Time
}

// Store is the account persistence boundary.
type Store interface {
	// CreateAccount inserts a; a duplicate EmailNorm returns a ConflictError.
	CreateAccount(ctx context.Context, a Account) error
	GetByEmail(ctx context.Context, emailNorm string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)

	TouchActivity(ctx context.Context, id string, now time.Time) error
	SetRole(ctx context.Context, id string, role Role, now time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error
}
