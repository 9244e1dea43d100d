package auth

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
// Transactions are copy-on-write: InTx works on a clone and swaps it in on success.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

// NewMemoryStore returns an empty store seeded with BuiltinRoles.
func NewMemoryStore() *MemoryStore {
	d := &memData{
		accounts:    make(map[uuid.UUID]Account),
		emails:      make(map[string]uuid.UUID),
		roles:       make(map[string]Role),
		grants:      make(map[uuid.UUID][]string),
		profiles:    make(map[uuid.UUID]Profile),
		usernames:   make(map[string]uuid.UUID),
		tokens:      make(map[string]RefreshToken),
		tokenHashes: make(map[string]string),
	}
	for _, r := range BuiltinRoles {
		d.roles[r.Name] = Role{Name: r.Name, Authorities: slices.Clone(r.Authorities)}
	}
	return &MemoryStore{data: d}
}

func (s *MemoryStore) view() memView {
	return memView{with: func(fn func(*memData) error) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(s.data)
	}}
}

func (s *MemoryStore) Accounts(ctx context.Context) AccountStore { return s.view().Accounts(ctx) }
func (s *MemoryStore) Roles(ctx context.Context) RoleStore       { return s.view().Roles(ctx) }
func (s *MemoryStore) Profiles(ctx context.Context) ProfileStore { return s.view().Profiles(ctx) }
func (s *MemoryStore) RefreshTokens(ctx context.Context) RefreshTokenStore {
	return s.view().RefreshTokens(ctx)
}

// InTx serializes transactions; reads and writes outside a transaction wait for it.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	tx := memView{with: func(f func(*memData) error) error { return f(work) }}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

type memData struct {
	accounts    map[uuid.UUID]Account
	emails      map[string]uuid.UUID
	roles       map[string]Role
	grants      map[uuid.UUID][]string
	profiles    map[uuid.UUID]Profile // keyed by account id
	usernames   map[string]uuid.UUID
	tokens      map[string]RefreshToken
	tokenHashes map[string]string
}

func (d *memData) clone() *memData {
	c := &memData{
		accounts:    make(map[uuid.UUID]Account, len(d.accounts)),
		emails:      make(map[string]uuid.UUID, len(d.emails)),
		roles:       d.roles,
		grants:      make(map[uuid.UUID][]string, len(d.grants)),
		profiles:    make(map[uuid.UUID]Profile, len(d.profiles)),
		usernames:   make(map[string]uuid.UUID, len(d.usernames)),
		tokens:      make(map[string]RefreshToken, len(d.tokens)),
		tokenHashes: make(map[string]string, len(d.tokenHashes)),
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.emails {
		c.emails[k] = v
	}
	for k, v := range d.grants {
		c.grants[k] = slices.Clone(v)
	}
	for k, v := range d.profiles {
		c.profiles[k] = v
	}
	for k, v := range d.usernames {
		c.usernames[k] = v
	}
	for k, v := range d.tokens {
		c.tokens[k] = v
	}
	for k, v := range d.tokenHashes {
		c.tokenHashes[k] = v
	}
	return c
}

// memView is either the live store (locking per call) or a transaction's clone.
type memView struct {
	with func(func(*memData) error) error
}

func (v memView) Accounts(context.Context) AccountStore { return memAccounts(v) }
func (v memView) Roles(context.Context) RoleStore       { return memRoles(v) }
func (v memView) Profiles(context.Context) ProfileStore { return memProfiles(v) }
func (v memView) RefreshTokens(context.Context) RefreshTokenStore {
	return memTokens(v)
}

// InTx on a transactional view joins the running transaction.
func (v memView) InTx(_ context.Context, fn func(tx Store) error) error { return fn(v) }

type memAccounts memView

func (m memAccounts) Create(_ context.Context, acct *Account) error {
	return m.with(func(d *memData) error {
		email := strings.ToLower(acct.Email)
		if _, ok := d.emails[email]; ok {
			return ErrDuplicateEmail
		}
		d.accounts[acct.ID] = *acct
		d.emails[email] = acct.ID
		return nil
	})
}

func (m memAccounts) FindByID(_ context.Context, id uuid.UUID) (*Account, error) {
	var out Account
	err := m.with(func(d *memData) error {
		a, ok := d.accounts[id]
		if !ok {
			return ErrNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m memAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	var id uuid.UUID
	err := m.with(func(d *memData) error {
		v, ok := d.emails[strings.ToLower(email)]
		if !ok {
			return ErrNotFound
		}
		id = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.FindByID(ctx, id)
}

func (m memAccounts) EmailExists(_ context.Context, email string) (bool, error) {
	var found bool
	err := m.with(func(d *memData) error {
		_, found = d.emails[strings.ToLower(email)]
		return nil
	})
	return found, err
}

func (m memAccounts) LockForUpdate(ctx context.Context, id uuid.UUID) (*Account, error) {
	return m.FindByID(ctx, id)
}

func (m memAccounts) UpdateStatus(_ context.Context, id uuid.UUID, locked, enabled bool) error {
	return m.with(func(d *memData) error {
		a, ok := d.accounts[id]
		if !ok {
			return ErrNotFound
		}
		a.Locked = locked
		a.Enabled = enabled
		a.UpdatedAt = time.Now().UTC()
		d.accounts[id] = a
		return nil
	})
}

type memRoles memView

func (m memRoles) Assign(_ context.Context, accountID uuid.UUID, role string) error {
	return m.with(func(d *memData) error {
		if _, ok := d.roles[role]; !ok {
			return ErrNotFound
		}
		if _, ok := d.accounts[accountID]; !ok {
			return ErrNotFound
		}
		if !slices.Contains(d.grants[accountID], role) {
			d.grants[accountID] = append(d.grants[accountID], role)
		}
		return nil
	})
}

func (m memRoles) ForAccount(_ context.Context, accountID uuid.UUID) ([]Role, error) {
	var out []Role
	err := m.with(func(d *memData) error {
		for _, name := range d.grants[accountID] {
			r := d.roles[name]
			out = append(out, Role{Name: r.Name, Authorities: slices.Clone(r.Authorities)})
		}
		return nil
	})
	return out, err
}

type memProfiles memView

func (m memProfiles) Create(_ context.Context, p *Profile) error {
	return m.with(func(d *memData) error {
		if _, ok := d.usernames[strings.ToLower(p.Username)]; ok {
			return ErrDuplicateUsername
		}
		if _, ok := d.accounts[p.AccountID]; !ok {
			return ErrNotFound
		}
		if _, ok := d.profiles[p.AccountID]; ok {
			return ErrDuplicate
		}
		d.profiles[p.AccountID] = *p
		d.usernames[strings.ToLower(p.Username)] = p.AccountID
		return nil
	})
}

func (m memProfiles) FindByAccount(_ context.Context, accountID uuid.UUID) (*Profile, error) {
	var out Profile
	err := m.with(func(d *memData) error {
		p, ok := d.profiles[accountID]
		if !ok {
			return ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m memProfiles) UsernameExists(_ context.Context, username string) (bool, error) {
	var found bool
	err := m.with(func(d *memData) error {
		_, found = d.usernames[strings.ToLower(username)]
		return nil
	})
	return found, err
}

type memTokens memView

func (m memTokens) Create(_ context.Context, t *RefreshToken) error {
	return m.with(func(d *memData) error {
		if _, ok := d.tokenHashes[t.TokenHash]; ok {
			return ErrDuplicate
		}
		d.tokens[t.ID] = *t
		d.tokenHashes[t.TokenHash] = t.ID
		return nil
	})
}

func (m memTokens) FindByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	var id string
	err := m.with(func(d *memData) error {
		v, ok := d.tokenHashes[hash]
		if !ok {
			return ErrNotFound
		}
		id = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.FindByID(ctx, id)
}

func (m memTokens) FindByID(_ context.Context, id string) (*RefreshToken, error) {
	var out RefreshToken
	err := m.with(func(d *memData) error {
		t, ok := d.tokens[id]
		if !ok {
			return ErrNotFound
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m memTokens) MarkRevoked(_ context.Context, id string) error {
	return m.with(func(d *memData) error {
		t, ok := d.tokens[id]
		if !ok {
			return ErrNotFound
		}
		t.Revoked = true
		d.tokens[id] = t
		return nil
	})
}

func (m memTokens) RevokeAllForAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	var n int64
	err := m.with(func(d *memData) error {
		for id, t := range d.tokens {
			if t.AccountID == accountID && !t.Revoked {
				t.Revoked = true
				d.tokens[id] = t
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m memTokens) Delete(_ context.Context, id string) error {
	return m.with(func(d *memData) error {
		t, ok := d.tokens[id]
		if !ok {
			return ErrNotFound
		}
		delete(d.tokens, id)
		delete(d.tokenHashes, t.TokenHash)
		return nil
	})
}

func (m memTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	err := m.with(func(d *memData) error {
		for id, t := range d.tokens {
			if t.ExpiresAt.Before(before) {
				delete(d.tokens, id)
				delete(d.tokenHashes, t.TokenHash)
				n++
			}
		}
		return nil
	})
	return n, err
}
