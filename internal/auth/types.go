package auth

import (
	"time"

	"github.com/google/uuid"
)

// Account is an authentication identity.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Locked       bool
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may authenticate.
func (a *Account) Active() bool {
	return a != nil && a.Enabled && !a.Locked
}

// Role is a named bundle of authority names, resolved by join from storage.
type Role struct {
	Name        string
	Authorities []string
}

// Profile is the display identity linked 1:1 to an Account.
type Profile struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Username  string
	CreatedAt time.Time
}

// RefreshToken is a persisted refresh token. Only the digest of the secret is stored.
type RefreshToken struct {
	ID        string
	AccountID uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// Usable reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t != nil && !t.Revoked && now.Before(t.ExpiresAt)
}
