package obs

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/metrics": "/metrics",
		"/tasks/0190a4f2-7c3e-7b1a-9f00-2d7c5e9b1a11":                 "/tasks/:id",
		"/admin/accounts/0190a4f2-7c3e-7b1a-9f00-2d7c5e9b1a11/status": "/admin/accounts/:id/status",
		"/tasks/not-a-uuid":        "/tasks/not-a-uuid",
		"/tasks/me":                "/tasks/me",
		"/tasks/me?status=PENDING": "/tasks/me",
		"/auth/signin":             "/auth/signin",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentCountsByCanonicalPath(t *testing.T) {
	Init()
	Init()

	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	req := httptest.NewRequest(http.MethodGet, "/tasks/0190a4f2-7c3e-7b1a-9f00-2d7c5e9b1a11", nil)
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/tasks/:id", "404"))
	h.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/tasks/:id", "404"))
	if after != before+1 {
		t.Fatalf("expected counter to grow by one, got %v -> %v", before, after)
	}
}

func TestAuthCounters(t *testing.T) {
	before := testutil.ToFloat64(signinTotal.WithLabelValues(OutcomeFailure))
	ObserveSignin(OutcomeFailure)
	if got := testutil.ToFloat64(signinTotal.WithLabelValues(OutcomeFailure)); got != before+1 {
		t.Fatalf("signin failure counter = %v, want %v", got, before+1)
	}

	swept := testutil.ToFloat64(tokensSwept)
	ObserveSwept(3)
	ObserveSwept(0)
	if got := testutil.ToFloat64(tokensSwept); got != swept+3 {
		t.Fatalf("swept = %v, want %v", got, swept+3)
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf strings.Builder
	prev := SetOutput(&buf)
	defer Restore(prev)

	Logger().Info("hello", "k", "v")
	line := buf.String()
	for _, want := range []string{`"ts":`, `"level":"INFO"`, `"msg":"hello"`, `"k":"v"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %s", line, want)
		}
	}
}

func TestInitBuildInfo(t *testing.T) {
	InitBuildInfo("1.2.3", "abc123")
	InitBuildInfo("1.2.3", "abc123")
	if got := testutil.ToFloat64(buildInfo.WithLabelValues("1.2.3", "abc123", runtime.Version())); got != 1 {
		t.Fatalf("build_info = %v, want 1", got)
	}
}
