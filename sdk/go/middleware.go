package collabhub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const (
	userContextKey  contextKey = "collabhub_user"
	tokenContextKey contextKey = "collabhub_token"
)

// MiddlewareConfig configures the authentication middleware.
type MiddlewareConfig struct {
	// SkipPaths is a list of path prefixes that do not require authentication.
	// Example: []string{"/health", "/public/"}
	SkipPaths []string

	// RequireVerifiedEmail rejects users whose email is not verified (HTTP 403).
	RequireVerifiedEmail bool

	// RequireStaff rejects users without the staff flag (HTTP 403).
	RequireStaff bool

	// ErrorHandler is an optional custom handler for authentication failures.
	// If nil, a JSON error in the auth API's envelope is written.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware returns net/http middleware that authenticates requests with a
// bearer token checked against the auth service. The user is available to
// handlers through UserFromContext.
func (c *Client) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range cfg.SkipPaths {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			token := bearerToken(r)
			if token == "" {
				handleAuthError(w, r, cfg, ErrNoToken)
				return
			}

			user, err := c.ValidateToken(r.Context(), token)
			if err != nil {
				handleAuthError(w, r, cfg, err)
				return
			}

			if cfg.RequireVerifiedEmail && !user.IsVerified {
				writeError(w, http.StatusForbidden, "email_not_verified", "Email verification required")
				return
			}
			if cfg.RequireStaff && !user.IsStaff {
				handleAuthError(w, r, cfg, ErrTokenForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = context.WithValue(ctx, tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated user, or nil when the middleware
// did not run or skipped the request.
func UserFromContext(ctx context.Context) *User {
	if user, ok := ctx.Value(userContextKey).(*User); ok {
		return user
	}
	return nil
}

// TokenFromContext returns the raw access token of the request.
func TokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(tokenContextKey).(string); ok {
		return token
	}
	return ""
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func handleAuthError(w http.ResponseWriter, r *http.Request, cfg MiddlewareConfig, err error) {
	if cfg.ErrorHandler != nil {
		cfg.ErrorHandler(w, r, err)
		return
	}

	switch {
	case errors.Is(err, ErrTokenForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Access forbidden")
	case errors.Is(err, ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "token_invalid", "Invalid or expired token")
	case errors.Is(err, ErrNoToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
	default:
		// the auth service could not be reached
		writeError(w, http.StatusBadGateway, "auth_unavailable", "Authentication service unavailable")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}
