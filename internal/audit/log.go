// Package audit emits security-relevant events through the shared structured logger.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"taskdeck.io/internal/auth"
	"taskdeck.io/internal/obs"
)

// Event names written by the service.
const (
	EventSignup        = "auth.signup"
	EventSignin        = "auth.signin"
	EventSigninFailed  = "auth.signin.failed"
	EventRefresh       = "auth.refresh"
	EventLogout        = "auth.logout"
	EventAccountStatus = "admin.account.status"
	EventSweep         = "sweep.refresh_tokens"
)

type ctxKey struct{}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and the
// authenticated account, when present. Fields never carry secrets.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	attrs := []any{slog.String("type", "audit"), slog.String("event", event)}
	if rid := RequestID(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if id, ok := auth.AccountIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("account_id", id.String()))
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	group := make([]any, 0, len(keys))
	for _, k := range keys {
		group = append(group, slog.Any(k, fields[k]))
	}
	attrs = append(attrs, slog.Group("fields", group...))

	obs.Logger().InfoContext(ctx, "audit", attrs...)
	return nil
}
