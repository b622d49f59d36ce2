package handler

import (
	"errors"
	"net/http"

	"github.com/collabhub/collabhub/internal/middleware"
	"github.com/collabhub/collabhub/internal/repository"
	"github.com/collabhub/collabhub/internal/service"
)

const invalidLinkMessage = "Invalid or expired link."

// apiError describes how a service error is presented to clients
type apiError struct {
	status  int
	code    string
	message string
}

// classify maps service errors to HTTP responses. Unknown errors become a
// generic 500 and are never echoed to the client.
func classify(err error) apiError {
	switch {
	case service.IsTokenError(err):
		return apiError{http.StatusBadRequest, "invalid_token", invalidLinkMessage}
	case errors.Is(err, service.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, "invalid_credentials", "Invalid email or password."}
	case errors.Is(err, service.ErrAccountLocked):
		return apiError{http.StatusForbidden, "account_locked", "Too many failed login attempts. Please try again later."}
	case errors.Is(err, service.ErrAccountDisabled):
		return apiError{http.StatusForbidden, "account_disabled", "This account has been disabled."}
	case errors.Is(err, service.ErrEmailNotVerified):
		return apiError{http.StatusForbidden, "email_not_verified", "Please verify your email address before logging in."}
	case errors.Is(err, service.ErrMFARequired):
		return apiError{http.StatusUnauthorized, "mfa_required", "A two-factor authentication code is required."}
	case errors.Is(err, service.ErrInvalidMFACode):
		return apiError{http.StatusUnauthorized, "invalid_mfa_code", "Invalid two-factor authentication code."}
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		return apiError{http.StatusConflict, "mfa_already_enabled", "Two-factor authentication is already enabled."}
	case errors.Is(err, service.ErrMFANotEnabled):
		return apiError{http.StatusBadRequest, "mfa_not_enabled", "Two-factor authentication is not enabled."}
	case errors.Is(err, service.ErrMFASetupNotStarted):
		return apiError{http.StatusBadRequest, "mfa_setup_not_started", "Start two-factor setup first."}
	case errors.Is(err, service.ErrEmailAlreadyExists):
		return apiError{http.StatusConflict, "email_exists", "An account with this email already exists."}
	case errors.Is(err, service.ErrUsernameTaken):
		return apiError{http.StatusConflict, "username_taken", "This username is already taken."}
	case errors.Is(err, service.ErrPasswordTooWeak):
		return apiError{http.StatusBadRequest, "password_too_weak", err.Error()}
	case errors.Is(err, service.ErrPasswordMismatch):
		return apiError{http.StatusBadRequest, "password_mismatch", "Passwords do not match."}
	case errors.Is(err, service.ErrInvalidEmail):
		return apiError{http.StatusBadRequest, "validation_error", "Enter a valid email address."}
	case errors.Is(err, service.ErrInvalidUsername):
		return apiError{http.StatusBadRequest, "validation_error", err.Error()}
	case errors.Is(err, service.ErrInvalidRole):
		return apiError{http.StatusBadRequest, "validation_error", "Unknown role."}
	case errors.Is(err, service.ErrInvalidConsentType):
		return apiError{http.StatusBadRequest, "validation_error", "Unknown consent_type."}
	case errors.Is(err, service.ErrCaptchaFailed):
		return apiError{http.StatusBadRequest, "captcha_failed", "CAPTCHA verification failed."}
	case errors.Is(err, service.ErrForbidden):
		return apiError{http.StatusForbidden, "forbidden", "You do not have permission to perform this action."}
	case errors.Is(err, repository.ErrNotFound):
		return apiError{http.StatusNotFound, "not_found", "Not found."}
	default:
		return apiError{http.StatusInternalServerError, "internal_error", "An unexpected error occurred."}
	}
}

// writeServiceError renders err. extra fields are merged into the top level
// of the body next to "error".
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string, extra map[string]interface{}) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("op", op).
			Msg("request failed")
	}

	body := map[string]interface{}{
		"error": errorBody(r, e.code, e.message, captchaDetails(err)),
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, e.status, body)
}

func captchaDetails(err error) map[string]interface{} {
	var cerr *service.CaptchaError
	if errors.As(err, &cerr) {
		return map[string]interface{}{"reason": string(cerr.Reason)}
	}
	return nil
}
