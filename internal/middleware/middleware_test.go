package middleware

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/cache"
	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/metrics"
)

func newTestMiddleware(t *testing.T) (*Middleware, *cache.MemoryStore, *config.Config) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Security.RateLimiting.Enabled = true
	store := cache.NewMemoryStore()
	return New(store, metrics.New(), logger.Nop(), cfg), store, cfg
}

func newTokenService(t *testing.T) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(config.TokenConfig{
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		SigningKey:      "middleware-test-key-0123456789abcdef",
		Issuer:          "collabhub-test",
	})
	require.NoError(t, err)
	return svc
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRemoteIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trusted    []*net.IPNet
		want       string
	}{
		{"socket address", "203.0.113.9:5555", "", nil, "203.0.113.9"},
		{"forwarded ignored without trust", "203.0.113.9:5555", "198.51.100.1", nil, "203.0.113.9"},
		{"forwarded ignored from untrusted peer", "203.0.113.9:5555", "198.51.100.1", trusted, "203.0.113.9"},
		{"single proxy hop", "10.0.0.1:5555", "198.51.100.1", trusted, "198.51.100.1"},
		{"spoofed leftmost entry skipped", "10.0.0.1:5555", "6.6.6.6, 198.51.100.1", trusted, "198.51.100.1"},
		{"chain of trusted proxies", "10.0.0.1:5555", "6.6.6.6, 198.51.100.1, 192.0.2.10, 10.0.0.2", trusted, "198.51.100.1"},
		{"garbage hop stops the walk", "10.0.0.1:5555", "198.51.100.1, junk", trusted, "10.0.0.1"},
		{"empty forwarded falls back", "10.0.0.1:5555", " ", trusted, "10.0.0.1"},
		{"address without port", "203.0.113.9", "", nil, "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, RemoteIP(r, tt.trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	nets, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.10 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, nets, 3)
	assert.True(t, nets[1].Contains(net.ParseIP("192.0.2.10")))
	assert.False(t, nets[1].Contains(net.ParseIP("192.0.2.11")))

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestClientIPStoresAddress(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.TrustProxy = true
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8"}
	m := New(cache.NewMemoryStore(), metrics.New(), logger.Nop(), cfg)

	var got string
	h := m.ClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientIP(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:443"
	r.Header.Set("X-Forwarded-For", "6.6.6.6, 198.51.100.7")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "198.51.100.7", got)

	// a direct caller cannot choose its address
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "198.51.100.7")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "192.0.2.1", got)
}

func TestRequestID(t *testing.T) {
	m, _, _ := newTestMiddleware(t)

	var got string
	h := m.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "req-123", got)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", strings.Repeat("a", 129))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Len(t, got, 36)
	assert.Equal(t, got, rec.Header().Get("X-Request-ID"))
}

func TestAuth(t *testing.T) {
	m, store, _ := newTestMiddleware(t)
	tokens := newTokenService(t)

	pair, _, err := tokens.GenerateTokenPair(auth.Subject{UserID: "usr_1", Email: "a@x.com"})
	require.NoError(t, err)

	var userID string
	h := m.Auth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = GetUserID(r.Context())
	}))

	serve := func(header string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(""))
	assert.Equal(t, http.StatusUnauthorized, serve("Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, serve("Bearer not-a-jwt"))

	assert.Equal(t, http.StatusOK, serve("Bearer "+pair.Access))
	assert.Equal(t, "usr_1", userID)

	claims, err := tokens.ValidateAccessToken(pair.Access)
	require.NoError(t, err)
	require.NoError(t, store.SetFlag(context.Background(), auth.RevokedAccessKey(claims.ID), time.Minute))
	assert.Equal(t, http.StatusUnauthorized, serve("Bearer "+pair.Access))
}

func TestAuthRejectsTokensBeforeCutoff(t *testing.T) {
	m, store, _ := newTestMiddleware(t)
	tokens := newTokenService(t)
	ctx := context.Background()

	pair, _, err := tokens.GenerateTokenPair(auth.Subject{UserID: "usr_1"})
	require.NoError(t, err)
	h := m.Auth(tokens)(okHandler)
	serve := func() int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+pair.Access)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	require.NoError(t, store.SetTime(ctx, auth.RevokedBeforeKey("usr_1"), time.Now().Add(-time.Hour), time.Minute))
	assert.Equal(t, http.StatusOK, serve())

	require.NoError(t, store.SetTime(ctx, auth.RevokedBeforeKey("usr_2"), time.Now().Add(2*time.Second), time.Minute))
	assert.Equal(t, http.StatusOK, serve())

	require.NoError(t, store.SetTime(ctx, auth.RevokedBeforeKey("usr_1"), time.Now().Add(2*time.Second), time.Minute))
	assert.Equal(t, http.StatusUnauthorized, serve())
}

func TestRequireStaff(t *testing.T) {
	m, _, _ := newTestMiddleware(t)
	tokens := newTokenService(t)
	h := m.Auth(tokens)(m.RequireStaff(okHandler))

	for _, staff := range []bool{false, true} {
		pair, _, err := tokens.GenerateTokenPair(auth.Subject{UserID: "usr_1", IsStaff: staff})
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+pair.Access)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		if staff {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusForbidden, rec.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	m, _, cfg := newTestMiddleware(t)
	h := m.ClientIP(m.RateLimit(RateLimitConfig{Name: "test", Limit: 2, Window: time.Minute})(okHandler))

	serve := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusOK, serve("192.0.2.1:1").Code)
	rec := serve("192.0.2.1:2")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve("192.0.2.1:3")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

	// counters are per address
	assert.Equal(t, http.StatusOK, serve("192.0.2.2:1").Code)

	cfg.Security.RateLimiting.Enabled = false
	assert.Equal(t, http.StatusOK, serve("192.0.2.1:4").Code)
}

func TestRecover(t *testing.T) {
	m, _, _ := newTestMiddleware(t)
	h := m.RequestID(m.Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"internal_error","message":"An unexpected error occurred"}}`, rec.Body.String())
}

func TestLoggerKeepsStatus(t *testing.T) {
	m, _, _ := newTestMiddleware(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	m.Logger(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
