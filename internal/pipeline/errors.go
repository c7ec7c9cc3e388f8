package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"storefront.org/internal/apperr"
	"storefront.org/internal/auth"
	"storefront.org/internal/catalog"
	"storefront.org/internal/envelope"
	"storefront.org/internal/kv"
	"storefront.org/internal/obs"
)

// headerCarrier is implemented by errors that must put headers on the
// error response, such as Retry-After.
type headerCarrier interface {
	ResponseHeaders() http.Header
}

type headerError struct {
	err     error
	headers http.Header
}

func (e *headerError) Error() string { return e.err.Error() }

func (e *headerError) Unwrap() error { return e.err }

func (e *headerError) ResponseHeaders() http.Header { return e.headers }

// WithHeaders attaches response headers to err.
func WithHeaders(err error, headers http.Header) error {
	if err == nil {
		return nil
	}
	return &headerError{err: err, headers: headers}
}

// Classify maps any error to the client-facing taxonomy.
func Classify(err error) *apperr.Error {
	if e, ok := apperr.As(err); ok {
		return e
	}
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return apperr.Internal(err)
	case errors.Is(err, auth.ErrTokenExpired):
		return apperr.Unauthenticated("Access token expired", "token_expired")
	case errors.Is(err, auth.ErrTokenReused):
		return apperr.Unauthenticated("Refresh token has been revoked", "token_reused")
	case errors.Is(err, auth.ErrTokenRevoked):
		return apperr.Unauthenticated("Refresh token has been revoked", "token_revoked")
	case errors.Is(err, auth.ErrTokenInvalid):
		return apperr.Unauthenticated("Invalid token", "token_invalid")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperr.Unauthenticated("Invalid email or password", "invalid_credentials")
	case errors.Is(err, auth.ErrPrincipalInactive):
		return apperr.Unauthenticated("Account is not active", "account_inactive")
	case errors.Is(err, auth.ErrStorageUnavailable), errors.Is(err, kv.ErrUnavailable):
		return apperr.Unavailable("Service temporarily unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Unavailable("Request timed out", err)
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "Resource not found", err)
	case errors.Is(err, auth.ErrAlreadyExists):
		return apperr.Wrap(apperr.KindBadRequest, "Resource already exists", err)
	case errors.Is(err, auth.ErrInvalidInput):
		return apperr.Wrap(apperr.KindBadRequest, inputMessage(err, auth.ErrInvalidInput), err)
	case errors.Is(err, catalog.ErrInvalid):
		return apperr.Wrap(apperr.KindBadRequest, inputMessage(err, catalog.ErrInvalid), err)
	case errors.Is(err, catalog.ErrConflict):
		return apperr.Wrap(apperr.KindBadRequest, inputMessage(err, catalog.ErrConflict), err)
	default:
		return apperr.Internal(err)
	}
}

// inputMessage extracts the detail a collaborator attached to sentinel, as
// in fmt.Errorf("%w: detail", sentinel).
func inputMessage(err, sentinel error) string {
	var se *StageError
	if errors.As(err, &se) {
		err = se.Err
	}
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
		msg = msg[i+len(sentinel.Error())+2:]
	}
	if msg == "" {
		return "Invalid request"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func (rt *Route) fail(w http.ResponseWriter, req Request, err error, now time.Time) {
	var se *StageError
	stage := ""
	if errors.As(err, &se) {
		req = se.Request
		stage = se.Stage
	}
	e := Classify(err)

	for k, v := range req.ResponseHeaders() {
		w.Header()[k] = v
	}
	var hc headerCarrier
	if errors.As(err, &hc) {
		for k, v := range hc.ResponseHeaders() {
			w.Header()[k] = v
		}
	}

	body := envelope.Failure(e)
	if e.Kind == apperr.KindInternal {
		body.Message = "Internal server error"
		if !rt.opts.Production {
			var pe *panicError
			if errors.As(err, &pe) {
				body.Stack = string(pe.stack)
			} else {
				body.Stack = err.Error()
			}
		}
	}
	if werr := envelope.Write(w, body, now); werr != nil {
		obs.Logger().WithError(werr).WithField("route", rt.name).Warn("write error response")
	}

	switch e.Kind {
	case apperr.KindAuthentication:
		obs.AuthFailure("unauthenticated")
	case apperr.KindAuthorization:
		obs.AuthFailure("forbidden")
	}

	fields := logrus.Fields{
		"route":      rt.name,
		"stage":      stage,
		"method":     req.Method,
		"path":       req.Path,
		"ip":         req.ClientIP,
		"request_id": req.ID,
		"status":     e.Status(),
		"kind":       e.Kind.String(),
	}
	if req.Principal != nil {
		fields["user_id"] = req.Principal.ID
	}
	entry := obs.Logger().WithFields(fields).WithError(err)
	if e.Status() >= http.StatusInternalServerError {
		entry.Error(e.Message)
	} else {
		entry.Warn(e.Message)
	}
}
