package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskdeck.io/internal/obs"
	"taskdeck.io/internal/validate"
)

const tracerName = "taskdeck.io/internal/auth"

// Service coordinates registration, signin, refresh and logout.
type Service struct {
	store   Store
	codec   *Codec
	refresh *RefreshManager
	hasher  *Hasher
	tracer  trace.Tracer
	now     func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithTracerProvider sets the provider used for orchestrator spans.
func WithTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the orchestrator.
func NewService(store Store, codec *Codec, refresh *RefreshManager, hasher *Hasher, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		codec:   codec,
		refresh: refresh,
		hasher:  hasher,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh exposes the refresh token manager, e.g. for the sweep.
func (s *Service) Refresh() *RefreshManager { return s.refresh }

// RegisterInput is a signup request.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Session is the result of a successful signin or refresh.
type Session struct {
	AccessToken     string
	AccessExpiresAt time.Time
	Refresh         IssuedRefreshToken
	Principal       Principal
}

// Register creates an account with the USER role and its profile in one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer func() { endSpan(span, err) }()

	if in.Password != in.ConfirmPassword {
		return ErrPasswordMismatch
	}

	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)
	v := validate.Errors{}
	v.Check(validate.Length(username, 3, 50), "username", "must be between 3 and 50 characters")
	v.Check(email != "", "email", "is required")
	v.Check(email == "" || validate.Email(email), "email", "must be a valid email address")
	if msg := PasswordPolicyViolation(in.Password); msg != "" {
		v.Add("password", msg)
	}
	if err := v.Err(); err != nil {
		return err
	}

	if exists, err := s.store.Accounts(ctx).EmailExists(ctx, email); err != nil {
		return err
	} else if exists {
		return ErrDuplicateEmail
	}
	if exists, err := s.store.Profiles(ctx).UsernameExists(ctx, username); err != nil {
		return err
	} else if exists {
		return ErrDuplicateUsername
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	accountID, err := uuid.NewV7()
	if err != nil {
		return err
	}
	profileID, err := uuid.NewV7()
	if err != nil {
		return err
	}
	now := s.now().UTC()

	err = s.store.InTx(ctx, func(tx Store) error {
		acct := &Account{
			ID:           accountID,
			Email:        email,
			PasswordHash: hash,
			Enabled:      true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Accounts(ctx).Create(ctx, acct); err != nil {
			return err
		}
		if err := tx.Roles(ctx).Assign(ctx, accountID, RoleUser); err != nil {
			return fmt.Errorf("assign default role: %w", err)
		}
		return tx.Profiles(ctx).Create(ctx, &Profile{
			ID:        profileID,
			AccountID: accountID,
			Username:  username,
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("account.id", accountID.String()))
	return nil
}

// AuthenticateUser checks credentials and opens a new session, revoking any prior
// refresh token of the account.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (sess Session, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.AuthenticateUser")
	defer func() {
		endSpan(span, err)
		if err != nil {
			obs.ObserveSignin(obs.OutcomeFailure)
		} else {
			obs.ObserveSignin(obs.OutcomeSuccess)
		}
	}()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	acct, err := s.store.Accounts(ctx).FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.hasher.Verify("", password)
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !s.hasher.Verify(acct.PasswordHash, password) || !acct.Active() {
		return Session{}, ErrInvalidCredentials
	}

	principal, err := s.loadPrincipal(ctx, s.store, *acct)
	if err != nil {
		return Session{}, err
	}
	issued, err := s.refresh.Create(ctx, acct.ID)
	if err != nil {
		return Session{}, err
	}
	span.SetAttributes(attribute.String("account.id", acct.ID.String()))
	return s.session(principal, issued)
}

// RefreshAccessToken exchanges a refresh token for a new access token and a
// rotated refresh token.
func (s *Service) RefreshAccessToken(ctx context.Context, raw string) (sess Session, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.RefreshAccessToken")
	defer func() {
		endSpan(span, err)
		if err != nil {
			obs.ObserveRefresh(obs.OutcomeFailure)
		} else {
			obs.ObserveRefresh(obs.OutcomeSuccess)
		}
	}()

	tok, err := s.refresh.FindByRawToken(ctx, raw)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return Session{}, err
	}
	if tok, err = s.refresh.VerifyNotExpiredOrRevoked(ctx, tok); err != nil {
		return Session{}, err
	}

	var (
		principal Principal
		issued    IssuedRefreshToken
		inactive  bool
	)
	err = s.store.InTx(ctx, func(tx Store) error {
		acct, err := tx.Accounts(ctx).LockForUpdate(ctx, tok.AccountID)
		if err != nil {
			return err
		}
		// Re-read under the lock: a concurrent rotation may have consumed it.
		current, err := tx.RefreshTokens(ctx).FindByID(ctx, tok.ID)
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		if err != nil {
			return err
		}
		if !current.Usable(s.now()) {
			return ErrInvalidRefreshToken
		}
		if !acct.Active() {
			inactive = true
			_, err := tx.RefreshTokens(ctx).RevokeAllForAccount(ctx, acct.ID)
			return err
		}
		if principal, err = s.loadPrincipal(ctx, tx, *acct); err != nil {
			return err
		}
		issued, err = s.refresh.createIn(ctx, tx, acct.ID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return Session{}, err
	}
	if inactive {
		return Session{}, ErrInvalidRefreshToken
	}
	span.SetAttributes(attribute.String("account.id", tok.AccountID.String()))
	return s.session(principal, issued)
}

// LogoutUser revokes the refresh token and returns the owning account id.
func (s *Service) LogoutUser(ctx context.Context, raw string) (accountID uuid.UUID, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.LogoutUser")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	tok, err := s.refresh.FindByRawToken(ctx, raw)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.refresh.Revoke(ctx, tok); err != nil {
		if errors.Is(err, ErrNotFound) {
			return uuid.Nil, ErrInvalidRefreshToken
		}
		return uuid.Nil, err
	}
	return tok.AccountID, nil
}

// ProfileView is the public profile of an account.
type ProfileView struct {
	ID       uuid.UUID
	Username string
	Email    string
}

// Profile returns the profile of the principal's account.
func (s *Service) Profile(ctx context.Context, p Principal) (ProfileView, error) {
	prof, err := s.store.Profiles(ctx).FindByAccount(ctx, p.AccountID)
	if err != nil {
		return ProfileView{}, err
	}
	acct, err := s.store.Accounts(ctx).FindByID(ctx, p.AccountID)
	if err != nil {
		return ProfileView{}, err
	}
	return ProfileView{ID: prof.ID, Username: prof.Username, Email: acct.Email}, nil
}

// StatusChange holds optional new values for an account's flags.
type StatusChange struct {
	Locked  *bool
	Enabled *bool
}

// SetAccountStatus updates lock/enable flags. Locking or disabling revokes every
// refresh token; access tokens stop working at the gate's next status check.
func (s *Service) SetAccountStatus(ctx context.Context, accountID uuid.UUID, change StatusChange) (acct Account, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.SetAccountStatus",
		trace.WithAttributes(attribute.String("account.id", accountID.String())))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(tx Store) error {
		current, err := tx.Accounts(ctx).LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if change.Locked != nil {
			current.Locked = *change.Locked
		}
		if change.Enabled != nil {
			current.Enabled = *change.Enabled
		}
		if err := tx.Accounts(ctx).UpdateStatus(ctx, accountID, current.Locked, current.Enabled); err != nil {
			return err
		}
		if !current.Active() {
			if _, err := tx.RefreshTokens(ctx).RevokeAllForAccount(ctx, accountID); err != nil {
				return err
			}
		}
		acct = *current
		return nil
	})
	return acct, err
}

func (s *Service) loadPrincipal(ctx context.Context, st Store, acct Account) (Principal, error) {
	roles, err := st.Roles(ctx).ForAccount(ctx, acct.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("load roles: %w", err)
	}
	prof, err := st.Profiles(ctx).FindByAccount(ctx, acct.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("load profile: %w", err)
	}
	return FromCredentialRecord(acct, *prof, roles), nil
}

func (s *Service) session(p Principal, issued IssuedRefreshToken) (Session, error) {
	token, claims, err := s.codec.Issue(p.Claims())
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:     token,
		AccessExpiresAt: claims.ExpiresAt,
		Refresh:         issued,
		Principal:       p,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
