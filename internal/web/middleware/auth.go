package middleware

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/constituents/internal/auth"
	"github.com/JonMunkholm/constituents/internal/logging"
)

// RequireSession rejects requests without a valid session token. The token is
// read from the session cookie or an Authorization: Bearer header; on success
// its claims are stored in the request context.
func RequireSession(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := TokenFromRequest(r)
			if raw == "" {
				logging.FromContext(r.Context()).Warn("auth: missing session",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
				return
			}

			claims, err := tokens.Parse(raw)
			if err != nil {
				logging.FromContext(r.Context()).Warn("auth: invalid session",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// TokenFromRequest returns the raw session token, preferring the Bearer
// header over the cookie. It returns "" when neither is present.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(auth.CookieName); err == nil {
		return c.Value
	}
	return ""
}
