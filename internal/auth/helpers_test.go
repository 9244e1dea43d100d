package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	testKeysOnce sync.Once
	testKeys     KeyPair
	otherKeys    KeyPair
)

func keysForTest(t *testing.T) (KeyPair, KeyPair) {
	t.Helper()
	testKeysOnce.Do(func() {
		var err error
		if testKeys, err = GenerateKeyPair("test-key", 2048); err != nil {
			panic(err)
		}
		if otherKeys, err = GenerateKeyPair("other-key", 2048); err != nil {
			panic(err)
		}
	})
	return testKeys, otherKeys
}

// clock is a settable time source shared by every component under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store   *MemoryStore
	codec   *Codec
	refresh *RefreshManager
	svc     *Service
	gate    *Gate
	clock   *clock
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	keys, _ := keysForTest(t)
	clk := newClock()
	store := NewMemoryStore()
	codec, err := NewCodec(keys, WithCodecClock(clk.Now), WithAccessTTL(15*time.Minute))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	refresh, err := NewRefreshManager(store, WithRefreshClock(clk.Now), WithRefreshTTL(7*24*time.Hour), WithTokenLength(32))
	if err != nil {
		t.Fatalf("NewRefreshManager: %v", err)
	}
	hasher, err := NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	opts = append([]ServiceOption{WithClock(clk.Now)}, opts...)
	return &fixture{
		store:   store,
		codec:   codec,
		refresh: refresh,
		svc:     NewService(store, codec, refresh, hasher, opts...),
		gate:    NewGate(codec, store),
		clock:   clk,
	}
}

func (f *fixture) register(t *testing.T, username, email, password string) {
	t.Helper()
	err := f.svc.Register(context.Background(), RegisterInput{
		Username: username, Email: email, Password: password, ConfirmPassword: password,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
}

func (f *fixture) signin(t *testing.T, email, password string) Session {
	t.Helper()
	sess, err := f.svc.AuthenticateUser(context.Background(), email, password)
	if err != nil {
		t.Fatalf("AuthenticateUser(%s): %v", email, err)
	}
	return sess
}
