package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryStoreRollback(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx Store) error {
		if err := tx.Accounts(ctx).Create(ctx, &Account{ID: id, Email: "a@b.co", Enabled: true}); err != nil {
			return err
		}
		if err := tx.Roles(ctx).Assign(ctx, id, RoleUser); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.Accounts(ctx).FindByID(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rolled back account should not exist, got %v", err)
	}
	if roles, _ := store.Roles(ctx).ForAccount(ctx, id); len(roles) != 0 {
		t.Fatalf("rolled back grant should not exist: %v", roles)
	}
}

func TestMemoryStoreCommitAndConstraints(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())

	err := store.InTx(ctx, func(tx Store) error {
		if err := tx.Accounts(ctx).Create(ctx, &Account{ID: id, Email: "a@b.co"}); err != nil {
			return err
		}
		return tx.InTx(ctx, func(inner Store) error {
			return inner.Profiles(ctx).Create(ctx, &Profile{ID: uuid.Must(uuid.NewV7()), AccountID: id, Username: "abc"})
		})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	if err := store.Accounts(ctx).Create(ctx, &Account{ID: uuid.Must(uuid.NewV7()), Email: "A@B.co"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if err := store.Profiles(ctx).Create(ctx, &Profile{ID: uuid.Must(uuid.NewV7()), AccountID: id, Username: "ABC"}); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if err := store.Roles(ctx).Assign(ctx, id, "SUPERUSER"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown role, got %v", err)
	}
	if ok, _ := store.Profiles(ctx).UsernameExists(ctx, "Abc"); !ok {
		t.Fatal("username lookup should be case-insensitive")
	}
}

func TestFlattenAuthorities(t *testing.T) {
	got := FlattenAuthorities(BuiltinRoles)
	want := []string{"ACCOUNT_ADMIN", "PROFILE_READ", "ROLE_ADMIN", "ROLE_USER", "TASK_READ", "TASK_WRITE"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if out := FlattenAuthorities(nil); len(out) != 0 {
		t.Fatalf("expected empty, got %v", out)
	}
}
