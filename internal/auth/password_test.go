package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordPolicy(t *testing.T) {
	cases := map[string]bool{
		"Aa1!aaaa":                true,
		"Password1":               true,
		"password1!":              true,
		"short1A":                 false,
		"alllowercase":            false,
		"ALLUPPER123":             false,
		"12345678":                false,
		strings.Repeat("Aa1", 43): false,
	}
	for pw, ok := range cases {
		msg := PasswordPolicyViolation(pw)
		if ok && msg != "" {
			t.Errorf("%q rejected: %s", pw, msg)
		}
		if !ok && msg == "" {
			t.Errorf("%q accepted", pw)
		}
	}
}

func TestHasher(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	hash, err := h.Hash("Aa1!aaaa")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "Aa1!aaaa" {
		t.Fatal("hash must not equal plaintext")
	}
	if !h.Verify(hash, "Aa1!aaaa") {
		t.Fatal("expected match")
	}
	if h.Verify(hash, "Aa1!aaab") {
		t.Fatal("expected mismatch")
	}
	if h.Verify("", "Aa1!aaaa") {
		t.Fatal("empty hash must never match")
	}
	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected error for empty password")
	}
	if _, err := NewHasher(2); err == nil {
		t.Fatal("expected error for cost below minimum")
	}
}
