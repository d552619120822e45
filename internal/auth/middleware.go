package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/causacart/causacart/internal/logging"
)

// SessionHeader carries the anonymous session token for guest shoppers.
const SessionHeader = "X-Session-Id"

// Middleware resolves the request identity and stores it in context. An
// invalid bearer token falls through to the session header rather than
// failing the request; routes that need an identity check for one
// themselves via IdentityFromContext.
func (v *Verifier) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if token := BearerToken(r.Header.Get("Authorization")); token != "" {
				userID, err := v.UserID(token)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, UserIdentity(userID))))
					return
				}
				logging.FromContext(ctx, logger).Debug("rejected bearer token", "error", err)
			}

			if session := strings.TrimSpace(r.Header.Get(SessionHeader)); session != "" {
				next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, SessionIdentity(session))))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
