package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/repository"
	"github.com/collabhub/collabhub/internal/service"
)

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrTokenExpired, http.StatusBadRequest, "invalid_token"},
		{service.ErrTokenAlreadyUsed, http.StatusBadRequest, "invalid_token"},
		{fmt.Errorf("verify: %w", service.ErrTokenInvalid), http.StatusBadRequest, "invalid_token"},
		{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{service.ErrAccountLocked, http.StatusForbidden, "account_locked"},
		{service.ErrEmailNotVerified, http.StatusForbidden, "email_not_verified"},
		{service.ErrMFARequired, http.StatusUnauthorized, "mfa_required"},
		{service.ErrMFAAlreadyEnabled, http.StatusConflict, "mfa_already_enabled"},
		{service.ErrEmailAlreadyExists, http.StatusConflict, "email_exists"},
		{service.ErrCaptchaFailed, http.StatusBadRequest, "captcha_failed"},
		{service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{repository.ErrNotFound, http.StatusNotFound, "not_found"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.status, got.status)
			assert.Equal(t, tt.code, got.code)
		})
	}
}

func TestInternalErrorsAreNotEchoed(t *testing.T) {
	h := New(nil, nil, logger.Nop(), &config.Config{}, nil, nil, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	h.writeServiceError(rec, r, errors.New("pq: relation users does not exist"), "test", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestReady(t *testing.T) {
	tests := []struct {
		name     string
		db       HealthChecker
		rdb      HealthChecker
		status   int
		services map[string]string
	}{
		{
			name:     "all healthy",
			db:       stubChecker{},
			rdb:      stubChecker{},
			status:   http.StatusOK,
			services: map[string]string{"postgres": "healthy", "redis": "healthy"},
		},
		{
			name:     "redis disabled",
			db:       stubChecker{},
			status:   http.StatusOK,
			services: map[string]string{"postgres": "healthy", "redis": "disabled"},
		},
		{
			name:     "postgres down",
			db:       stubChecker{err: errors.New("dial tcp: refused")},
			rdb:      stubChecker{},
			status:   http.StatusServiceUnavailable,
			services: map[string]string{"postgres": "unhealthy", "redis": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.db, tt.rdb, logger.Nop(), &config.Config{}, nil, nil, nil, nil, nil, nil)

			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.status, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.services, resp.Services)
		})
	}
}

func TestHealth(t *testing.T) {
	h := New(stubChecker{err: errors.New("down")}, nil, logger.Nop(), &config.Config{}, nil, nil, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"`+Version+`"}`, rec.Body.String())
}
