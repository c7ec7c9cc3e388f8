// Package audit records security-relevant events on the security log channel.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"storefront.org/internal/auth"
	"storefront.org/internal/obs"
)

// Event names written by the service.
const (
	EventLogin           = "auth.login"
	EventLoginFailed     = "auth.login_failed"
	EventRegister        = "auth.register"
	EventLogout          = "auth.logout"
	EventLogoutAll       = "auth.logout_all"
	EventRefreshReuse    = "auth.refresh_reuse"
	EventAccessDenied    = "authz.denied"
	EventStatusChanged   = "admin.status_changed"
	EventRoleChanged     = "admin.role_changed"
	EventRateLimited     = "ratelimit.rejected"
	EventPrincipalSeed   = "admin.bootstrap"
	EventCacheInvalidate = "cache.invalidated"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := obs.Security().WithFields(logrus.Fields{
		"type":   "audit",
		"event":  event,
		"fields": copyFields(fields),
	})
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = entry.WithField("request_id", rid)
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry = entry.WithField("user_id", userID)
	}
	entry.Info(event)
	return nil
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
