package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Gate authenticates bearer tokens for protected routes.
//
// Authorities are trusted from the verified token; only enabled/locked are
// re-read from the Credential Store on each request. A role change therefore
// takes effect at the next token issuance, at most one access TTL later, while
// a lock or disable takes effect on the very next request.
type Gate struct {
	codec    *Codec
	accounts func(ctx context.Context) AccountStore
}

// NewGate constructs a Gate over the codec and the store's accounts.
func NewGate(codec *Codec, store Store) *Gate {
	return &Gate{codec: codec, accounts: store.Accounts}
}

// Authenticate verifies the bearer token and returns the request principal.
// Every failure wraps ErrUnauthenticated.
func (g *Gate) Authenticate(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	claims, err := g.codec.Verify(ctx, token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	acct, err := g.accounts(ctx).FindByID(ctx, claims.AccountID)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrPrincipalNotFound)
	}
	if err != nil {
		return Principal{}, err
	}
	p := FromVerifiedClaims(claims, acct.Enabled, acct.Locked)
	if !p.Active() {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrAccountInactive)
	}
	return p, nil
}
