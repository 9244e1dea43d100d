package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"taskdeck.io/internal/auth"
	"taskdeck.io/internal/obs"
	"taskdeck.io/internal/task"
	"taskdeck.io/internal/validate"
)

// Error codes carried in the "code" field of every error body.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeDuplicateResource   = "DUPLICATE_RESOURCE"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeAccessDenied        = "ACCESS_DENIED"
	CodeNotFound            = "NOT_FOUND"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeUnexpected          = "UNEXPECTED"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	RequestID string            `json:"request_id,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeErrorBody(w, r, status, errorBody{Error: msg, Code: code})
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	body.RequestID = RequestIDFromContext(r.Context())
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="taskdeck"`)
	}
	writeJSON(w, status, body)
}

// writeDomainError is the single place where service errors become HTTP responses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var fields validate.Errors
	switch {
	case errors.As(err, &fields):
		writeErrorBody(w, r, http.StatusBadRequest, errorBody{
			Error: "validation failed", Code: CodeValidationFailed, Errors: fields,
		})
	case errors.Is(err, auth.ErrPasswordMismatch):
		writeErrorBody(w, r, http.StatusBadRequest, errorBody{
			Error:  "validation failed",
			Code:   CodeValidationFailed,
			Errors: map[string]string{"confirmPassword": "passwords do not match"},
		})
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeErrorBody(w, r, http.StatusBadRequest, errorBody{
			Error:  "email is already registered",
			Code:   CodeDuplicateResource,
			Errors: map[string]string{"email": "is already registered"},
		})
	case errors.Is(err, auth.ErrDuplicateUsername):
		writeErrorBody(w, r, http.StatusBadRequest, errorBody{
			Error:  "username is already taken",
			Code:   CodeDuplicateResource,
			Errors: map[string]string{"username": "is already taken"},
		})
	case errors.Is(err, auth.ErrDuplicate):
		writeError(w, r, http.StatusBadRequest, CodeDuplicateResource, "resource already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		writeError(w, r, http.StatusUnauthorized, CodeInvalidRefreshToken, "refresh token is invalid or expired")
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrPrincipalNotFound),
		errors.Is(err, auth.ErrInvalidSignature),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrMalformedToken):
		writeError(w, r, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
	case errors.Is(err, auth.ErrAccessDenied):
		writeError(w, r, http.StatusForbidden, CodeAccessDenied, "access denied")
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, task.ErrNotFound):
		writeError(w, r, http.StatusNotFound, CodeNotFound, "resource not found")
	default:
		obs.Logger().ErrorContext(r.Context(), "request failed",
			"request_id", RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeError(w, r, http.StatusInternalServerError, CodeUnexpected, "an unexpected error occurred")
	}
}

// decodeJSON reads exactly one JSON value. Failures come back as validate.Errors on "body".
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return bodyError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return validate.Errors{"body": "unexpected data after JSON body"}
	}
	return nil
}

func bodyError(err error) error {
	var (
		tooLarge *http.MaxBytesError
		typeErr  *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return validate.Errors{"body": "request body is required"}
	case errors.As(err, &tooLarge):
		return validate.Errors{"body": "request body is too large"}
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return validate.Errors{typeErr.Field: "has the wrong type"}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return validate.Errors{"body": strings.TrimPrefix(err.Error(), "json: ")}
	default:
		return validate.Errors{"body": "malformed JSON"}
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, CodeNotFound, "resource not found")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
