package auth

import (
	"slices"

	"github.com/google/uuid"
)

// PrincipalSource records which factory built a Principal.
type PrincipalSource string

const (
	SourceCredentials PrincipalSource = "credentials"
	SourceToken       PrincipalSource = "token"
)

// Principal is the request-scoped identity. It has one shape regardless of
// whether it was loaded from storage or decoded from a verified token.
type Principal struct {
	AccountID   uuid.UUID
	ProfileID   uuid.UUID
	Email       string
	Authorities []string
	Enabled     bool
	Locked      bool
	Source      PrincipalSource
}

// FromCredentialRecord builds a principal from stored account state and roles.
func FromCredentialRecord(acct Account, profile Profile, roles []Role) Principal {
	return Principal{
		AccountID:   acct.ID,
		ProfileID:   profile.ID,
		Email:       acct.Email,
		Authorities: FlattenAuthorities(roles),
		Enabled:     acct.Enabled,
		Locked:      acct.Locked,
		Source:      SourceCredentials,
	}
}

// FromVerifiedClaims builds a principal from token claims plus the live
// enabled/locked flags. Authorities are taken from the token as issued.
func FromVerifiedClaims(c Claims, enabled, locked bool) Principal {
	return Principal{
		AccountID:   c.AccountID,
		ProfileID:   c.ProfileID,
		Email:       c.Email,
		Authorities: slices.Clone(c.Authorities),
		Enabled:     enabled,
		Locked:      locked,
		Source:      SourceToken,
	}
}

// Active reports whether the account may act.
func (p Principal) Active() bool {
	return p.Enabled && !p.Locked
}

// HasAuthority reports whether the principal was granted authority.
func (p Principal) HasAuthority(authority string) bool {
	return slices.Contains(p.Authorities, authority)
}

// Claims projects the principal into token claims for issuance.
func (p Principal) Claims() Claims {
	return Claims{
		AccountID:   p.AccountID,
		ProfileID:   p.ProfileID,
		Email:       p.Email,
		Authorities: slices.Clone(p.Authorities),
	}
}
