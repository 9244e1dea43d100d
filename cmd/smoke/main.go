package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"taskdeck.io/internal/ids"
)

const password = "Aa1!aaaa"

type client struct {
	base   string
	http   *http.Client
	cookie *http.Cookie
}

func main() {
	log.SetFlags(0)
	base := os.Getenv("BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 10 * time.Second}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	suffix := strings.ToLower(ids.New()[16:])
	username := "smoke" + suffix
	email := username + "@example.com"

	c.expect(ctx, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username, "email": email, "password": password, "confirmPassword": password,
	}, http.StatusCreated, nil)

	var signin struct {
		AccessToken string `json:"accessToken"`
	}
	c.expect(ctx, http.MethodPost, "/auth/signin", "", map[string]string{
		"email": email, "password": password,
	}, http.StatusOK, &signin)
	if signin.AccessToken == "" || c.cookie == nil {
		log.Fatal("signin returned no access token or refresh cookie")
	}

	var created struct {
		ID string `json:"id"`
	}
	c.expect(ctx, http.MethodPost, "/tasks", signin.AccessToken, map[string]string{"title": "T"}, http.StatusCreated, &created)
	if created.ID == "" {
		log.Fatal("created task has no id")
	}

	var page struct {
		Content []struct {
			Title string `json:"title"`
		} `json:"content"`
	}
	c.expect(ctx, http.MethodGet, "/tasks/me", signin.AccessToken, nil, http.StatusOK, &page)
	if len(page.Content) != 1 || page.Content[0].Title != "T" {
		log.Fatalf("unexpected task list: %+v", page.Content)
	}

	oldCookie := c.cookie
	c.expect(ctx, http.MethodPost, "/auth/logout", "", nil, http.StatusOK, nil)
	c.cookie = oldCookie
	c.expect(ctx, http.MethodPost, "/auth/refresh", "", nil, http.StatusUnauthorized, nil)

	fmt.Printf("✅ taskdeck smoke test passed: account=%s task=%s\n", email, created.ID)
}

// expect performs one call and fails the run unless the status matches.
// A refresh cookie in the response replaces the stored one.
func (c *client) expect(ctx context.Context, method, path, token string, body any, want int, out any) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s: %v", path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		log.Fatalf("new request %s: %v", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.cookie != nil {
		req.AddCookie(&http.Cookie{Name: c.cookie.Name, Value: c.cookie.Value})
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		log.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, want, raw)
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == "refresh_token" {
			c.cookie = ck
		}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			log.Fatalf("decode %s: %v", path, err)
		}
	}
}
