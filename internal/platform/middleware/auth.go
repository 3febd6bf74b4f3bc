// Package middleware carries the HTTP middleware stack: authentication,
// request identity, client metadata and request metrics.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/httputil"
	"peopleflow/pkg/requestcontext"
)

// SessionValidator verifies a bearer token and returns the caller it
// authenticates.
type SessionValidator interface {
	Validate(tokenString string) (requestcontext.CallerInfo, error)
}

// RequireAuth rejects requests without a valid bearer session token and
// binds the authenticated caller to the request context. Role checks happen
// in the services; this layer only establishes who is calling.
func RequireAuth(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			caller, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "rejected session token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}
