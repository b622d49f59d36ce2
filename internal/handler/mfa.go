package handler

import (
	"errors"
	"net/http"

	"github.com/collabhub/collabhub/internal/middleware"
	"github.com/collabhub/collabhub/internal/service"
)

// --- MFA Status ---

// MFAStatus returns the authenticated user's MFA state
func (h *Handler) MFAStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.mfaSvc.Status(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, "mfa_status", nil)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// --- TOTP Setup ---

// MFASetup starts TOTP enrollment and returns the secret and QR code
func (h *Handler) MFASetup(w http.ResponseWriter, r *http.Request) {
	resp, err := h.mfaSvc.StartSetup(r.Context(), actor(r))
	if err != nil {
		h.writeServiceError(w, r, err, "mfa_setup", nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

// MFAVerify confirms enrollment with a first TOTP code. The backup codes in
// the response are never shown again.
func (h *Handler) MFAVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaCodeRequest
	if err := readJSON(w, r, &req); err != nil || req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "A verification code is required")
		return
	}

	resp, err := h.mfaSvc.ConfirmSetup(r.Context(), actor(r), req.Code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMFACode) {
			writeError(w, r, http.StatusBadRequest, "invalid_mfa_code", "Invalid verification code.")
			return
		}
		h.writeServiceError(w, r, err, "mfa_verify", nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type mfaDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

// MFADisable turns MFA off. It needs the password and a current TOTP code.
func (h *Handler) MFADisable(w http.ResponseWriter, r *http.Request) {
	var req mfaDisableRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	err := h.mfaSvc.Disable(r.Context(), actor(r), req.Password, req.Code)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Two-factor authentication disabled."})
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidMFACode):
		writeError(w, r, http.StatusForbidden, "invalid_credentials", "Invalid password or verification code.")
	default:
		h.writeServiceError(w, r, err, "mfa_disable", nil)
	}
}

// MFABackupCodes replaces the backup code set after a TOTP check
func (h *Handler) MFABackupCodes(w http.ResponseWriter, r *http.Request) {
	var req mfaCodeRequest
	if err := readJSON(w, r, &req); err != nil || req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "A verification code is required")
		return
	}

	resp, err := h.mfaSvc.RegenerateBackupCodes(r.Context(), actor(r), req.Code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMFACode) {
			writeError(w, r, http.StatusForbidden, "invalid_mfa_code", "Invalid verification code.")
			return
		}
		h.writeServiceError(w, r, err, "mfa_backup_codes", nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
