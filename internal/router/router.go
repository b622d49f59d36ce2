package router

import (
	"net/http"
	"time"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/handler"
	"github.com/collabhub/collabhub/internal/metrics"
	"github.com/collabhub/collabhub/internal/middleware"
)

// Options controls optional surfaces of the router
type Options struct {
	// MetricsPath exposes Prometheus metrics when set
	MetricsPath string
}

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, tokenSvc *auth.TokenService, m *metrics.Metrics, opts Options) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	if opts.MetricsPath != "" && m != nil {
		mux.Handle("GET "+opts.MetricsPath, m.Handler())
	}

	// Public authentication routes (rate limited per client IP)
	loginRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "login",
		Limit:  20,
		Window: 15 * time.Minute,
	})
	registerRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "register",
		Limit:  5,
		Window: time.Hour,
	})
	refreshRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "refresh",
		Limit:  30,
		Window: time.Minute,
	})
	emailRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "email",
		Limit:  5,
		Window: time.Hour,
	})
	tokenRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "token",
		Limit:  20,
		Window: time.Hour,
	})

	mux.Handle("POST /auth/register", registerRateLimit(http.HandlerFunc(h.Register)))
	mux.Handle("POST /auth/login", loginRateLimit(http.HandlerFunc(h.Login)))
	mux.Handle("POST /auth/refresh", refreshRateLimit(http.HandlerFunc(h.RefreshToken)))

	// Email verification; links in emails carry a trailing slash
	mux.Handle("GET /auth/verify-email/{token}", tokenRateLimit(http.HandlerFunc(h.VerifyEmail)))
	mux.Handle("GET /auth/verify-email/{token}/", tokenRateLimit(http.HandlerFunc(h.VerifyEmail)))
	mux.Handle("POST /auth/resend-verification", emailRateLimit(http.HandlerFunc(h.ResendVerification)))

	// Password reset routes
	mux.Handle("POST /auth/password-reset", emailRateLimit(http.HandlerFunc(h.PasswordResetRequest)))
	mux.Handle("GET /auth/password-reset/{token}", tokenRateLimit(http.HandlerFunc(h.PasswordResetValidate)))
	mux.Handle("POST /auth/password-reset/{token}", tokenRateLimit(http.HandlerFunc(h.PasswordResetConfirm)))

	// Protected routes (require auth)
	authMw := mw.Auth(tokenSvc)
	protected := func(fn http.HandlerFunc) http.Handler {
		return authMw(fn)
	}

	mux.Handle("POST /auth/logout", protected(h.Logout))
	mux.Handle("GET /auth/me", protected(h.GetCurrentUser))
	mux.Handle("POST /auth/password/change", protected(h.ChangePassword))

	// MFA routes
	mfaRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "mfa",
		Limit:  10,
		Window: time.Minute,
		KeyFn:  middleware.UserKey,
	})
	mfa := func(fn http.HandlerFunc) http.Handler {
		return authMw(mfaRateLimit(fn))
	}
	mux.Handle("GET /auth/mfa/status", protected(h.MFAStatus))
	mux.Handle("POST /auth/mfa/setup", mfa(h.MFASetup))
	mux.Handle("POST /auth/mfa/verify", mfa(h.MFAVerify))
	mux.Handle("POST /auth/mfa/disable", mfa(h.MFADisable))
	mux.Handle("POST /auth/mfa/backup-codes", mfa(h.MFABackupCodes))

	// Account data rights
	mux.Handle("GET /auth/account/export", protected(h.ExportAccount))
	mux.Handle("DELETE /auth/account", protected(h.DeleteAccount))
	mux.Handle("GET /auth/consent", protected(h.ListConsents))
	mux.Handle("POST /auth/consent", protected(h.RecordConsent))
	mux.Handle("GET /auth/security-events", protected(h.SecurityEvents))

	// Admin routes (staff only)
	admin := func(fn http.HandlerFunc) http.Handler {
		return authMw(mw.RequireStaff(fn))
	}
	mux.Handle("GET /auth/admin/security-events", admin(h.AdminSecurityEvents))
	mux.Handle("GET /auth/admin/audit-logs", admin(h.AdminAuditLogs))
	mux.Handle("POST /auth/admin/unlock", admin(h.AdminUnlockAccount))
	mux.Handle("PUT /auth/admin/users/{id}/role", admin(h.AdminChangeRole))

	// The frontend proxies the same routes under /api
	mux.Handle("/api/auth/", http.StripPrefix("/api", mux))

	// Apply middleware stack
	var handler http.Handler = mux

	// Request logging and latency metrics wrap the mux directly
	handler = mw.Logger(handler)

	handler = mw.ClientIP(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
