package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/collabhub/collabhub/internal/auth"
)

// Context keys for authenticated user data
const (
	UserIDKey contextKey = "user_id"
	ClaimsKey contextKey = "claims"
)

// Auth creates an authentication middleware that validates bearer access
// tokens. Tokens blacklisted at logout or issued before the user's last
// password change are rejected.
func (m *Middleware) Auth(tokenSvc *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string
			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
					tokenString = strings.TrimSpace(parts[1])
				}
			}

			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			claims, err := tokenSvc.ValidateAccessToken(tokenString)
			if err != nil {
				m.log.Debug().Err(err).Msg("token validation failed")
				writeError(w, http.StatusUnauthorized, "token_invalid", "The access token is invalid or expired")
				return
			}

			if claims.ID != "" {
				ttl, err := m.store.FlagTTL(r.Context(), auth.RevokedAccessKey(claims.ID))
				if err != nil {
					m.log.Warn().Err(err).Msg("failed to check access token blacklist")
				} else if ttl > 0 {
					writeError(w, http.StatusUnauthorized, "token_invalid", "The access token is invalid or expired")
					return
				}
			}

			cutoff, err := m.store.Time(r.Context(), auth.RevokedBeforeKey(claims.Subject))
			if err != nil {
				m.log.Warn().Err(err).Msg("failed to check session cutoff")
			} else if auth.IssuedBefore(claims, cutoff) {
				writeError(w, http.StatusUnauthorized, "token_invalid", "The access token is invalid or expired")
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, ClaimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireStaff rejects authenticated callers without the staff claim. It
// must run inside Auth.
func (m *Middleware) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims == nil || !claims.IsStaff {
			writeError(w, http.StatusForbidden, "forbidden", "Administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID retrieves the authenticated user ID from context
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// GetClaims retrieves the validated access token claims from context
func GetClaims(ctx context.Context) *auth.TokenClaims {
	if c, ok := ctx.Value(ClaimsKey).(*auth.TokenClaims); ok {
		return c
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}
