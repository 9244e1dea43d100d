package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"taskdeck.io/api/spec"
	"taskdeck.io/internal/auth"
	"taskdeck.io/internal/authz"
	"taskdeck.io/internal/obs"
	"taskdeck.io/internal/task"
)

const serviceName = "taskdeck-api"

// ReadinessChecker reports whether dependencies can take traffic.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database. A nil DB (in-memory stores) is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rp.DB.PingContext(ctx)
}

// Options wires the HTTP layer to the services it fronts.
type Options struct {
	Auth   *auth.Service
	Gate   *auth.Gate
	Policy *authz.Policy
	Tasks  *task.Service
	Codec  *auth.Codec
	Ready  ReadinessChecker

	Version string
	Cookie  CookieConfig
	Origins []string

	RateBurst     int
	RatePerSecond float64
	// TrustProxy reads the client address from X-Forwarded-For.
	TrustProxy bool
}

// API is the HTTP layer.
type API struct {
	auth    *auth.Service
	gate    *auth.Gate
	policy  *authz.Policy
	tasks   *task.Service
	jwks    json.RawMessage
	ready   ReadinessChecker
	version string
	cookie  CookieConfig
	origins []string

	rateBurst     int
	ratePerSecond float64
	trustProxy    bool
}

func New(opts Options) *API {
	a := &API{
		auth:          opts.Auth,
		gate:          opts.Gate,
		policy:        opts.Policy,
		tasks:         opts.Tasks,
		ready:         opts.Ready,
		version:       opts.Version,
		cookie:        opts.Cookie,
		origins:       opts.Origins,
		rateBurst:     opts.RateBurst,
		ratePerSecond: opts.RatePerSecond,
		trustProxy:    opts.TrustProxy,
	}
	if opts.Codec != nil {
		a.jwks = opts.Codec.JWKS()
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	return a
}

// Handler builds the router. Each call gets fresh rate-limit state.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		RequestID,
		ClientAddr(a.trustProxy),
		LoggingJSON,
		Recover,
		SecurityHeaders,
		CORS(a.origins),
		func(next http.Handler) http.Handler { return MaxBodyBytes(next, maxBodyBytes) },
		obs.Instrument,
	)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())
	r.Get("/openapi.yaml", a.OpenAPISpec)
	r.Get("/.well-known/jwks.json", a.JWKS)

	r.Route("/auth", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return RateLimit(next, a.rateBurst, a.ratePerSecond)
		})
		r.Post("/signup", a.signup)
		r.Post("/signin", a.signin)
		r.Post("/refresh", a.refresh)
		r.Post("/logout", a.logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)

		r.With(a.authorize(authz.ActionTaskCreate)).Post("/tasks", a.createTask)
		r.With(a.authorize(authz.ActionTaskList)).Get("/tasks/me", a.listTasks)
		r.With(a.authorize(authz.ActionTaskRead)).Get("/tasks/{id}", a.getTask)
		r.With(a.authorize(authz.ActionTaskUpdate)).Put("/tasks/{id}", a.updateTask)
		r.With(a.authorize(authz.ActionTaskDelete)).Delete("/tasks/{id}", a.deleteTask)

		r.With(a.authorize(authz.ActionProfileRead)).Get("/users/me", a.me)
		r.With(a.authorize(authz.ActionAccountStatus)).Put("/admin/accounts/{id}/status", a.setAccountStatus)
	})

	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.Logger().WarnContext(r.Context(), "readiness check failed", "error", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  "database unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// JWKS publishes the public half of the signing key.
func (a *API) JWKS(w http.ResponseWriter, r *http.Request) {
	if len(a.jwks) == 0 {
		notFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(a.jwks)
}
