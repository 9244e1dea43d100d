package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store provides transactional access to credential and refresh token storage.
type Store interface {
	Accounts(ctx context.Context) AccountStore
	Roles(ctx context.Context) RoleStore
	Profiles(ctx context.Context) ProfileStore
	RefreshTokens(ctx context.Context) RefreshTokenStore

	// InTx runs fn against a transactional view. fn's writes commit together
	// when it returns nil and are discarded otherwise.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// AccountStore persists accounts.
type AccountStore interface {
	Create(ctx context.Context, acct *Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// LockForUpdate loads the account and holds a row lock until the
	// surrounding transaction ends. Outside InTx it behaves like FindByID.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, locked, enabled bool) error
}

// RoleStore resolves role membership through join tables.
type RoleStore interface {
	Assign(ctx context.Context, accountID uuid.UUID, role string) error
	ForAccount(ctx context.Context, accountID uuid.UUID) ([]Role, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	Create(ctx context.Context, profile *Profile) error
	FindByAccount(ctx context.Context, accountID uuid.UUID) (*Profile, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// RefreshTokenStore persists hashed refresh tokens.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)
	FindByID(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
