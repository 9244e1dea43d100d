package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"taskdeck.io/api/spec"
	"taskdeck.io/internal/obs"
	"taskdeck.io/internal/task"
)

func TestHealthAndReadiness(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/healthz", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if h := decode[map[string]any](t, resp); h["status"] != "ok" || h["version"] != "test" {
		t.Fatalf("healthz = %v", h)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatal("missing X-Request-ID")
	}

	resp = api.get("/readyz", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	down := newTestAPI(t, func(o *Options) { o.Ready = failingReadiness{} })
	resp = down.get("/readyz", nil, nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.Contains(string(raw), "boom") {
		t.Fatalf("readiness cause leaked: %s", raw)
	}
}

func TestJWKSPublishesSigningKey(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/.well-known/jwks.json", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	set := decode[struct {
		Keys []map[string]any `json:"keys"`
	}](t, resp)
	if len(set.Keys) != 1 {
		t.Fatalf("keys = %v", set.Keys)
	}
	k := set.Keys[0]
	if k["kid"] != "test-key" || k["kty"] != "RSA" {
		t.Fatalf("unexpected key: %v", k)
	}
	if _, ok := k["d"]; ok {
		t.Fatal("private exponent published")
	}
}

func TestMetricsAndOpenAPIServed(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/metrics", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.get("/openapi.yaml", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Equal(body, spec.OpenAPI) {
		t.Fatal("served document differs from the embedded one")
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/yaml") {
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	api := newTestAPI(t)
	expectError(t, api.get("/nope", nil, nil), http.StatusNotFound, CodeNotFound)
	expectError(t, api.del("/healthz", nil), http.StatusMethodNotAllowed, CodeMethodNotAllowed)
}

type brokenTaskStore struct{ task.InMemory }

var errBackend = errors.New("dial tcp 10.0.0.5:5432: connection refused")

func (*brokenTaskStore) Create(context.Context, *task.Task) error { return errBackend }
func (*brokenTaskStore) List(context.Context, task.Query) ([]task.Task, int64, error) {
	return nil, 0, errBackend
}

func TestUnexpectedErrorIsNotLeaked(t *testing.T) {
	var logs bytes.Buffer
	prev := obs.SetOutput(&logs)
	defer obs.Restore(prev)

	api := newTestAPI(t, func(o *Options) {
		o.Tasks = task.NewService(&brokenTaskStore{})
	})
	api.signup("user1", "u1@x.com")
	sess := api.signin("u1@x.com")

	resp := api.post("/tasks", map[string]any{"title": "T"}, sess.bearer())
	body := expectError(t, resp, http.StatusInternalServerError, CodeUnexpected)
	if body.Error != "an unexpected error occurred" {
		t.Fatalf("error = %q", body.Error)
	}
	if strings.Contains(body.Error, "10.0.0.5") {
		t.Fatal("cause leaked to the client")
	}
	if !strings.Contains(logs.String(), "10.0.0.5") {
		t.Fatal("cause was not logged")
	}
}

func TestRoutesAreDocumented(t *testing.T) {
	doc := loadOpenAPI(t)
	routes, ok := newTestRouter(t).(chi.Routes)
	if !ok {
		t.Fatal("handler is not a chi router")
	}
	err := chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		item := doc.Paths.Find(route)
		if item == nil || item.GetOperation(method) == nil {
			t.Errorf("%s %s is served but not documented", method, route)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}

func TestResponsesMatchOpenAPI(t *testing.T) {
	doc := loadOpenAPI(t)
	router, err := legacy.NewRouter(doc)
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	api := newTestAPI(t)
	api.signup("user1", "u1@x.com")
	sess := api.signin("u1@x.com")
	resp := api.post("/tasks", map[string]any{"title": "T", "dueDate": "2026-12-01T09:00:00Z"}, sess.bearer())
	expectStatus(t, resp, http.StatusCreated)
	taskPath := "/tasks/" + decode[task.Task](t, resp).ID.String()

	cases := []struct {
		method string
		path   string
		body   any
		auth   map[string]string
	}{
		{http.MethodGet, "/healthz", nil, nil},
		{http.MethodGet, "/tasks/me", nil, sess.bearer()},
		{http.MethodGet, taskPath, nil, sess.bearer()},
		{http.MethodPut, taskPath, map[string]any{"priority": "LOW"}, sess.bearer()},
		{http.MethodGet, "/tasks/" + uuid.NewString(), nil, sess.bearer()},
		{http.MethodGet, "/users/me", nil, sess.bearer()},
		{http.MethodGet, "/tasks/me", nil, nil},
		{http.MethodPost, "/auth/signin", map[string]string{"email": "u1@x.com", "password": "nope"}, nil},
		{http.MethodPost, "/auth/signup", map[string]string{"username": "x"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp := api.do(tc.method, tc.path, tc.body, tc.auth)
			raw, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				t.Fatalf("read body: %v", err)
			}

			// Route lookup runs against the documented server URL.
			req := httptest.NewRequest(tc.method, "http://localhost:8080"+tc.path, nil)
			route, params, err := router.FindRoute(req)
			if err != nil {
				t.Fatalf("find route: %v", err)
			}
			input := &openapi3filter.ResponseValidationInput{
				RequestValidationInput: &openapi3filter.RequestValidationInput{
					Request:    req,
					PathParams: params,
					Route:      route,
				},
				Status: resp.StatusCode,
				Header: resp.Header,
				Body:   io.NopCloser(bytes.NewReader(raw)),
			}
			if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
				t.Fatalf("status %d body %s: %v", resp.StatusCode, raw, err)
			}
		})
	}
}

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec.OpenAPI)
	if err != nil {
		t.Fatalf("load openapi: %v", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		t.Fatalf("invalid openapi document: %v", err)
	}
	return doc
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return New(Options{Version: "test"}).Handler()
}

func TestErrorBodyShape(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeDomainError(rr, req, errBackend)
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != CodeUnexpected || body["error"] != "an unexpected error occurred" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["errors"]; ok {
		t.Fatal("errors field present without field failures")
	}
}
