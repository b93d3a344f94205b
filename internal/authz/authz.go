// Package authz turns bearer tokens issued by the external auth service into
// a caller identity.
package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"chatcore/internal/domain"
	"chatcore/internal/observability/metrics"
	obsmw "chatcore/internal/observability/middleware"

	"github.com/google/uuid"
)

var (
	ErrMissingToken   = errors.New("authz: missing bearer token")
	ErrInvalidToken   = errors.New("authz: invalid token")
	ErrIssuerMismatch = errors.New("authz: issuer mismatch")
	ErrInvalidSubject = errors.New("authz: subject is not a user id")
)

// Validator checks a raw token and returns the subject user id.
type Validator interface {
	Method() string
	Validate(ctx context.Context, raw string) (domain.UserID, error)
}

// Middleware authenticates requests with v. The token is read from the
// Authorization header, or from the access_token query parameter for
// websocket upgrades, which cannot carry custom headers from browsers.
func Middleware(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := obsmw.RequestIDFromContext(r.Context())
			traceID := obsmw.TraceIDFromContext(r.Context())

			raw, err := tokenFromRequest(r)
			if err == nil {
				var userID domain.UserID
				userID, err = v.Validate(r.Context(), raw)
				if err == nil {
					metrics.AuthenticationAttemptsTotal.WithLabelValues(v.Method(), "success").Inc()
					slog.Debug("auth passed", "method", v.Method(), "user_id", userID, "request_id", reqID, "trace_id", traceID)
					next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
					return
				}
			}
			metrics.AuthenticationAttemptsTotal.WithLabelValues(v.Method(), "failure").Inc()
			slog.Warn("auth rejected", "method", v.Method(), "error", err, "request_id", reqID, "trace_id", traceID)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

func tokenFromRequest(r *http.Request) (string, error) {
	raw := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		if tok := strings.TrimSpace(raw[len("Bearer "):]); tok != "" {
			return tok, nil
		}
	}
	if tok := strings.TrimSpace(r.URL.Query().Get("access_token")); tok != "" {
		return tok, nil
	}
	return "", ErrMissingToken
}

func subjectToUserID(sub string) (domain.UserID, error) {
	if sub == "" {
		return uuid.Nil, ErrInvalidSubject
	}
	id, err := uuid.Parse(sub)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidSubject
	}
	return id, nil
}

type userKey struct{}

func WithUserID(ctx context.Context, id domain.UserID) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

func UserIDFrom(ctx context.Context) (domain.UserID, bool) {
	v, ok := ctx.Value(userKey{}).(domain.UserID)
	return v, ok && v != uuid.Nil
}
