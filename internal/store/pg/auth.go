package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskdeck.io/internal/auth"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AuthStore implements auth.Store. Inside InTx every sub-store shares one *sql.Tx.
type AuthStore struct {
	db   *sql.DB
	q    queryer
	inTx bool
}

var _ auth.Store = (*AuthStore)(nil)

func (s *AuthStore) Accounts(context.Context) auth.AccountStore { return accountStore{s.q} }
func (s *AuthStore) Roles(context.Context) auth.RoleStore       { return roleStore{s.q} }
func (s *AuthStore) Profiles(context.Context) auth.ProfileStore { return profileStore{s.q} }
func (s *AuthStore) RefreshTokens(context.Context) auth.RefreshTokenStore {
	return tokenStore{s.q}
}

// InTx runs fn in a read-committed transaction. Nested calls join the outer one.
func (s *AuthStore) InTx(ctx context.Context, fn func(tx auth.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&AuthStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

// Accounts ------------------------------------------------------------------

type accountStore struct{ q queryer }

const accountColumns = `id, email, password_hash, locked, enabled, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*auth.Account, error) {
	var a auth.Account
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Locked, &a.Enabled, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s accountStore) Create(ctx context.Context, a *auth.Account) error {
	_, err := s.q.ExecContext(ctx, `
		insert into accounts (`+accountColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Email, a.PasswordHash, a.Locked, a.Enabled, a.CreatedAt, a.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return auth.ErrDuplicateEmail
	}
	return err
}

func (s accountStore) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	return scanAccount(s.q.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id = $1`, id))
}

func (s accountStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return scanAccount(s.q.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where lower(email) = lower($1)`, email))
}

func (s accountStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`select exists(select 1 from accounts where lower(email) = lower($1))`, email).Scan(&exists)
	return exists, err
}

func (s accountStore) LockForUpdate(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	return scanAccount(s.q.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id = $1 for update`, id))
}

func (s accountStore) UpdateStatus(ctx context.Context, id uuid.UUID, locked, enabled bool) error {
	res, err := s.q.ExecContext(ctx, `
		update accounts set locked = $2, enabled = $3, updated_at = now()
		where id = $1
	`, id, locked, enabled)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// Roles ---------------------------------------------------------------------

type roleStore struct{ q queryer }

func (s roleStore) Assign(ctx context.Context, accountID uuid.UUID, role string) error {
	_, err := s.q.ExecContext(ctx, `
		insert into account_roles (account_id, role_name)
		values ($1, $2)
		on conflict do nothing
	`, accountID, role)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrNotFound
	}
	return err
}

func (s roleStore) ForAccount(ctx context.Context, accountID uuid.UUID) ([]auth.Role, error) {
	rows, err := s.q.QueryContext(ctx, `
		select ar.role_name, ra.authority_name
		from account_roles ar
		left join role_authorities ra on ra.role_name = ar.role_name
		where ar.account_id = $1
		order by ar.role_name, ra.authority_name
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var (
			name      string
			authority sql.NullString
		)
		if err := rows.Scan(&name, &authority); err != nil {
			return nil, err
		}
		if len(roles) == 0 || roles[len(roles)-1].Name != name {
			roles = append(roles, auth.Role{Name: name})
		}
		if authority.Valid {
			last := &roles[len(roles)-1]
			last.Authorities = append(last.Authorities, authority.String)
		}
	}
	return roles, rows.Err()
}

// Profiles ------------------------------------------------------------------

type profileStore struct{ q queryer }

func (s profileStore) Create(ctx context.Context, p *auth.Profile) error {
	_, err := s.q.ExecContext(ctx, `
		insert into profiles (id, account_id, username, created_at)
		values ($1, $2, $3, $4)
	`, p.ID, p.AccountID, p.Username, p.CreatedAt)
	if pgErr, ok := maybePgError(err); ok {
		switch {
		case pgErr.Code == pgErrUniqueViolation && pgErr.ConstraintName == "profiles_username_key":
			return auth.ErrDuplicateUsername
		case pgErr.Code == pgErrUniqueViolation:
			return fmt.Errorf("%w: profile already exists", auth.ErrDuplicate)
		case pgErr.Code == pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

func (s profileStore) FindByAccount(ctx context.Context, accountID uuid.UUID) (*auth.Profile, error) {
	var p auth.Profile
	err := s.q.QueryRowContext(ctx, `
		select id, account_id, username, created_at from profiles where account_id = $1
	`, accountID).Scan(&p.ID, &p.AccountID, &p.Username, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s profileStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`select exists(select 1 from profiles where lower(username) = lower($1))`, username).Scan(&exists)
	return exists, err
}

// Refresh tokens ------------------------------------------------------------

type tokenStore struct{ q queryer }

const tokenColumns = `id, account_id, token_hash, expires_at, created_at, revoked`

func scanToken(row *sql.Row) (*auth.RefreshToken, error) {
	var t auth.RefreshToken
	if err := row.Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.Revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s tokenStore) Create(ctx context.Context, t *auth.RefreshToken) error {
	_, err := s.q.ExecContext(ctx, `
		insert into refresh_tokens (`+tokenColumns+`)
		values ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.AccountID, t.TokenHash, t.ExpiresAt, t.CreatedAt, t.Revoked)
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: refresh token", auth.ErrDuplicate)
		case pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

func (s tokenStore) FindByHash(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	return scanToken(s.q.QueryRowContext(ctx,
		`select `+tokenColumns+` from refresh_tokens where token_hash = $1`, hash))
}

func (s tokenStore) FindByID(ctx context.Context, id string) (*auth.RefreshToken, error) {
	return scanToken(s.q.QueryRowContext(ctx,
		`select `+tokenColumns+` from refresh_tokens where id = $1`, id))
}

func (s tokenStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `update refresh_tokens set revoked = true where id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s tokenStore) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`update refresh_tokens set revoked = true where account_id = $1 and not revoked`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s tokenStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from refresh_tokens where id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s tokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `delete from refresh_tokens where expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
