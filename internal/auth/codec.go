package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"taskdeck.io/internal/ids"
)

const (
	defaultIssuer    = "tasks-management"
	defaultKeyID     = "taskdeck-1"
	defaultAccessTTL = 15 * time.Minute
)

// Claims is the decoded access token content.
type Claims struct {
	AccountID   uuid.UUID
	ProfileID   uuid.UUID
	Email       string
	Authorities []string
	Issuer      string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// accessClaims is the wire shape of the signed claim set.
type accessClaims struct {
	jwt.RegisteredClaims
	ProfileID   string   `json:"pid"`
	Email       string   `json:"email"`
	Authorities []string `json:"authorities"`
}

// Codec signs and verifies RS256 access tokens. Verification resolves the key
// through the published JWK Set, so it only ever touches public material.
type Codec struct {
	keys   KeyPair
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time

	jwks    json.RawMessage
	keyfunc keyfunc.Keyfunc
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec) error

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl <= 0 {
			return errors.New("auth: access ttl must be positive")
		}
		c.ttl = ttl
		return nil
	}
}

// WithLeeway tolerates clock skew when checking exp and iat.
func WithLeeway(d time.Duration) CodecOption {
	return func(c *Codec) error {
		if d < 0 {
			return errors.New("auth: leeway must not be negative")
		}
		c.leeway = d
		return nil
	}
}

// WithCodecClock overrides the time source.
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// NewCodec builds a codec around keys and publishes its public half as a JWK Set.
func NewCodec(keys KeyPair, opts ...CodecOption) (*Codec, error) {
	if keys.Private == nil || keys.Public == nil {
		return nil, errors.New("auth: codec requires a keypair")
	}
	if keys.ID == "" {
		keys.ID = defaultKeyID
	}
	c := &Codec{
		keys:   keys,
		issuer: defaultIssuer,
		ttl:    defaultAccessTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	ctx := context.Background()
	jwk, err := jwkset.NewJWKFromKey(keys.Public, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{
			ALG: jwkset.AlgRS256,
			KID: keys.ID,
			USE: jwkset.UseSig,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("auth: build jwk: %w", err)
	}
	storage := jwkset.NewMemoryStorage()
	if err := storage.KeyWrite(ctx, jwk); err != nil {
		return nil, fmt.Errorf("auth: store jwk: %w", err)
	}
	raw, err := storage.JSONPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: marshal jwks: %w", err)
	}
	kf, err := keyfunc.NewJWKSetJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("auth: keyfunc: %w", err)
	}
	c.jwks = raw
	c.keyfunc = kf
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.ttl }

// JWKS returns the public JWK Set document.
func (c *Codec) JWKS() json.RawMessage { return c.jwks }

// Issue signs claims. Issuer, issue time, expiry and token id are assigned here and
// returned in the echoed Claims, truncated to the second as encoded.
func (c *Codec) Issue(claims Claims) (string, Claims, error) {
	if claims.AccountID == uuid.Nil {
		return "", Claims{}, errors.New("auth: subject is required")
	}
	now := c.now().Truncate(time.Second)
	claims.Issuer = c.issuer
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(c.ttl)
	claims.TokenID = ids.New()
	if claims.Authorities == nil {
		claims.Authorities = []string{}
	}

	wire := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    claims.Issuer,
			Subject:   claims.AccountID.String(),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			ID:        claims.TokenID,
		},
		ProfileID:   claims.ProfileID.String(),
		Email:       claims.Email,
		Authorities: claims.Authorities,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, wire)
	token.Header["kid"] = c.keys.ID
	signed, err := token.SignedString(c.keys.Private)
	if err != nil {
		return "", Claims{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, issuer and expiry and decodes the claim set.
// Failures are ErrInvalidSignature, ErrTokenExpired or ErrMalformedToken.
func (c *Codec) Verify(ctx context.Context, token string) (Claims, error) {
	var wire accessClaims
	_, err := jwt.ParseWithClaims(token, &wire, c.keyfunc.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(c.issuer),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, classifyTokenError(err)
	}

	sub, err := uuid.Parse(wire.Subject)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: subject", ErrMalformedToken)
	}
	pid, err := uuid.Parse(wire.ProfileID)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: profile id", ErrMalformedToken)
	}
	out := Claims{
		AccountID:   sub,
		ProfileID:   pid,
		Email:       wire.Email,
		Authorities: wire.Authorities,
		Issuer:      wire.Issuer,
		TokenID:     wire.ID,
	}
	if wire.IssuedAt != nil {
		out.IssuedAt = wire.IssuedAt.Time
	}
	if wire.ExpiresAt != nil {
		out.ExpiresAt = wire.ExpiresAt.Time
	}
	if out.Authorities == nil {
		out.Authorities = []string{}
	}
	return out, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
