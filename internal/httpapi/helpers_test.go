package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskdeck.io/internal/auth"
	"taskdeck.io/internal/authz"
	"taskdeck.io/internal/task"
)

const testPassword = "Aa1!aaaa"

var (
	keysOnce sync.Once
	keys     auth.KeyPair
)

func signingKeys(t *testing.T) auth.KeyPair {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if keys, err = auth.GenerateKeyPair("test-key", 2048); err != nil {
			panic(err)
		}
	})
	return keys
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	store *auth.MemoryStore
}

// newTestAPI serves the full router over in-memory stores. mutate may adjust
// the options before the router is built.
func newTestAPI(t *testing.T, mutate ...func(*Options)) *apiClient {
	t.Helper()

	store := auth.NewMemoryStore()
	codec, err := auth.NewCodec(signingKeys(t), auth.WithAccessTTL(15*time.Minute))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	refresh, err := auth.NewRefreshManager(store, auth.WithTokenLength(32))
	if err != nil {
		t.Fatalf("NewRefreshManager: %v", err)
	}
	hasher, err := auth.NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	policy, err := authz.NewPolicy(context.Background())
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	opts := Options{
		Auth:    auth.NewService(store, codec, refresh, hasher),
		Gate:    auth.NewGate(codec, store),
		Policy:  policy,
		Tasks:   task.NewService(task.NewInMemory()),
		Codec:   codec,
		Ready:   ReadyProbe{},
		Version: "test",
		Cookie: CookieConfig{
			Name:     "refresh_token",
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
			MaxAge:   604800,
		},
		Origins:       []string{"http://localhost:5173"},
		RateBurst:     1000,
		RatePerSecond: 1000,
	}
	for _, m := range mutate {
		m(&opts)
	}

	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		store:   store,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		if payload, err = json.Marshal(b); err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) put(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPut, path, body, headers)
}

func (c *apiClient) del(path string, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodDelete, path, nil, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, headers)
}

func (c *apiClient) signup(username, email string) {
	c.t.Helper()
	resp := c.post("/auth/signup", map[string]string{
		"username":        username,
		"email":           email,
		"password":        testPassword,
		"confirmPassword": testPassword,
	}, nil)
	expectStatus(c.t, resp, http.StatusCreated)
	resp.Body.Close()
}

// session is what a browser would hold after signin.
type session struct {
	access  string
	refresh *http.Cookie
}

func (s session) bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.access}
}

func (s session) cookie() map[string]string {
	return map[string]string{"Cookie": s.refresh.Name + "=" + s.refresh.Value}
}

func (c *apiClient) signin(email string) session {
	c.t.Helper()
	resp := c.post("/auth/signin", map[string]string{"email": email, "password": testPassword}, nil)
	expectStatus(c.t, resp, http.StatusOK)
	ck := refreshCookie(c.t, resp)
	body := decode[accessTokenResponse](c.t, resp)
	if body.AccessToken == "" {
		c.t.Fatal("empty access token")
	}
	return session{access: body.AccessToken, refresh: ck}
}

// grantAdmin assigns the ADMIN role directly in the store; it shows up at the next signin.
func (c *apiClient) grantAdmin(email string) {
	c.t.Helper()
	ctx := context.Background()
	acct, err := c.store.Accounts(ctx).FindByEmail(ctx, email)
	if err != nil {
		c.t.Fatalf("FindByEmail: %v", err)
	}
	if err := c.store.Roles(ctx).Assign(ctx, acct.ID, auth.RoleAdmin); err != nil {
		c.t.Fatalf("Assign: %v", err)
	}
}

func (c *apiClient) accountID(email string) string {
	c.t.Helper()
	ctx := context.Background()
	acct, err := c.store.Accounts(ctx).FindByEmail(ctx, email)
	if err != nil {
		c.t.Fatalf("FindByEmail: %v", err)
	}
	return acct.ID.String()
}

func refreshCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, ck := range resp.Cookies() {
		if ck.Name == "refresh_token" {
			return ck
		}
	}
	t.Fatalf("no refresh_token cookie in %v", resp.Header.Values("Set-Cookie"))
	return nil
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		resp.Body.Close()
		t.Fatalf("%s %s: status %d, want %d; body %s",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body.String())
	}
}

// expectError checks status and code and returns the decoded body.
func expectError(t *testing.T, resp *http.Response, status int, code string) errorBody {
	t.Helper()
	expectStatus(t, resp, status)
	body := decode[errorBody](t, resp)
	if body.Code != code {
		t.Fatalf("code = %q, want %q (body %+v)", body.Code, code, body)
	}
	if body.RequestID == "" {
		t.Fatalf("error body without request_id: %+v", body)
	}
	return body
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (c *apiClient) profileID(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	acct, err := c.store.Accounts(ctx).FindByEmail(ctx, email)
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	prof, err := c.store.Profiles(ctx).FindByAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("FindByAccount: %v", err)
	}
	return prof.ID.String()
}
