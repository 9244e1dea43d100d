package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdeck.io/internal/ids"
	"taskdeck.io/internal/obs"
)

const (
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultRefreshLength = 64
	minRefreshLength     = 32
)

// IssuedRefreshToken carries the raw secret. It is the only place the secret exists.
type IssuedRefreshToken struct {
	Raw    string
	Record RefreshToken
}

// RefreshManager issues, looks up and revokes refresh tokens.
type RefreshManager struct {
	store  Store
	ttl    time.Duration
	length int
	digest func() hash.Hash
	now    func() time.Time
}

// RefreshOption configures a RefreshManager.
type RefreshOption func(*RefreshManager) error

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) RefreshOption {
	return func(m *RefreshManager) error {
		if ttl <= 0 {
			return errors.New("auth: refresh ttl must be positive")
		}
		m.ttl = ttl
		return nil
	}
}

// WithTokenLength sets the number of random bytes in a refresh secret.
func WithTokenLength(n int) RefreshOption {
	return func(m *RefreshManager) error {
		if n < minRefreshLength {
			return fmt.Errorf("auth: refresh token length must be at least %d bytes", minRefreshLength)
		}
		m.length = n
		return nil
	}
}

// WithDigest selects SHA-256, SHA-384 or SHA-512 for stored token hashes.
func WithDigest(name string) RefreshOption {
	return func(m *RefreshManager) error {
		switch strings.ToUpper(strings.TrimSpace(name)) {
		case "SHA-256", "SHA256":
			m.digest = sha256.New
		case "SHA-384", "SHA384":
			m.digest = sha512.New384
		case "SHA-512", "SHA512":
			m.digest = sha512.New
		default:
			return fmt.Errorf("auth: unsupported digest %q", name)
		}
		return nil
	}
}

// WithRefreshClock overrides the time source.
func WithRefreshClock(fn func() time.Time) RefreshOption {
	return func(m *RefreshManager) error {
		if fn != nil {
			m.now = fn
		}
		return nil
	}
}

// NewRefreshManager constructs a manager over store.
func NewRefreshManager(store Store, opts ...RefreshOption) (*RefreshManager, error) {
	m := &RefreshManager{
		store:  store,
		ttl:    defaultRefreshTTL,
		length: defaultRefreshLength,
		digest: sha256.New,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// TTL returns the configured refresh token lifetime.
func (m *RefreshManager) TTL() time.Duration { return m.ttl }

// Create revokes every active token of the account and stores a new one, in one
// transaction holding the account row lock, so concurrent signins cannot leave
// two active tokens behind.
func (m *RefreshManager) Create(ctx context.Context, accountID uuid.UUID) (IssuedRefreshToken, error) {
	var issued IssuedRefreshToken
	err := m.store.InTx(ctx, func(tx Store) error {
		if _, err := tx.Accounts(ctx).LockForUpdate(ctx, accountID); err != nil {
			return err
		}
		var err error
		issued, err = m.createIn(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return IssuedRefreshToken{}, err
	}
	return issued, nil
}

// createIn runs inside a caller-owned transaction that already holds the account lock.
func (m *RefreshManager) createIn(ctx context.Context, tx Store, accountID uuid.UUID) (IssuedRefreshToken, error) {
	tokens := tx.RefreshTokens(ctx)
	if _, err := tokens.RevokeAllForAccount(ctx, accountID); err != nil {
		return IssuedRefreshToken{}, fmt.Errorf("revoke prior refresh tokens: %w", err)
	}

	secret := make([]byte, m.length)
	if _, err := rand.Read(secret); err != nil {
		return IssuedRefreshToken{}, err
	}
	raw := base64.RawURLEncoding.EncodeToString(secret)
	now := m.now().UTC()
	rec := RefreshToken{
		ID:        ids.New(),
		AccountID: accountID,
		TokenHash: m.hash(raw),
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := tokens.Create(ctx, &rec); err != nil {
		return IssuedRefreshToken{}, fmt.Errorf("store refresh token: %w", err)
	}
	return IssuedRefreshToken{Raw: raw, Record: rec}, nil
}

// FindByRawToken looks a token up by the digest of raw. Returns ErrNotFound on a miss.
func (m *RefreshManager) FindByRawToken(ctx context.Context, raw string) (RefreshToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RefreshToken{}, ErrNotFound
	}
	rec, err := m.store.RefreshTokens(ctx).FindByHash(ctx, m.hash(raw))
	if err != nil {
		return RefreshToken{}, err
	}
	return *rec, nil
}

// VerifyNotExpiredOrRevoked returns tok when it is usable. Otherwise the stale
// record is deleted and ErrInvalidRefreshToken is returned.
func (m *RefreshManager) VerifyNotExpiredOrRevoked(ctx context.Context, tok RefreshToken) (RefreshToken, error) {
	if tok.Usable(m.now()) {
		return tok, nil
	}
	if err := m.store.RefreshTokens(ctx).Delete(ctx, tok.ID); err != nil && !errors.Is(err, ErrNotFound) {
		obs.Logger().WarnContext(ctx, "stale refresh token cleanup failed",
			"token_id", tok.ID, "error", err.Error())
	}
	return RefreshToken{}, ErrInvalidRefreshToken
}

// RevokeAllForAccount revokes every active token of the account.
func (m *RefreshManager) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return m.store.RefreshTokens(ctx).RevokeAllForAccount(ctx, accountID)
}

// Revoke marks a single token revoked. The record is kept until the sweep removes it.
func (m *RefreshManager) Revoke(ctx context.Context, tok RefreshToken) error {
	return m.store.RefreshTokens(ctx).MarkRevoked(ctx, tok.ID)
}

// DeleteExpired removes tokens whose expiry is before now.
func (m *RefreshManager) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.store.RefreshTokens(ctx).DeleteExpired(ctx, now)
}

func (m *RefreshManager) hash(raw string) string {
	h := m.digest()
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}
