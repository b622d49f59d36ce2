package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/middleware"
	"github.com/collabhub/collabhub/internal/model"
	"github.com/collabhub/collabhub/internal/service"
)

const (
	resendMessage = "If an account with that email exists and is not yet verified, a verification email has been sent."
	resetMessage  = "If an account with that email exists, a password reset link has been sent."
	maxBodyBytes  = 1 << 20
)

// JSON helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorBody(r *http.Request, code, message string, details map[string]interface{}) map[string]interface{} {
	body := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	if reqID := middleware.GetRequestID(r.Context()); reqID != "" {
		body["request_id"] = reqID
	}
	return body
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{"error": errorBody(r, code, message, nil)})
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// actor builds the acting identity for service calls from the request
func actor(r *http.Request) service.Actor {
	return service.Actor{
		UserID:    middleware.GetUserID(r.Context()),
		IP:        middleware.GetClientIP(r.Context()),
		UserAgent: r.UserAgent(),
	}
}

// captchaToken prefers the body field and falls back to the header
func captchaToken(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get("X-Captcha-Token")
}

// --- Registration Handler ---

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Password2    string `json:"password2"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         string `json:"role"`
	CaptchaToken string `json:"captcha_token"`
}

type authResponse struct {
	User                 *model.User     `json:"user"`
	Tokens               *auth.TokenPair `json:"tokens"`
	VerificationRequired bool            `json:"verification_required,omitempty"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" || req.Username == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Username, email and password are required")
		return
	}

	res, err := h.authSvc.Register(r.Context(), actor(r), service.RegisterRequest{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		Password2:    req.Password2,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		CaptchaToken: captchaToken(r, req.CaptchaToken),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "register", nil)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		User:                 res.User,
		Tokens:               res.Tokens,
		VerificationRequired: res.VerificationRequired,
	})
}

// --- Login Handler ---

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	MFACode      string `json:"mfa_code"`
	CaptchaToken string `json:"captcha_token"`
}

type loginResponse struct {
	Access               string      `json:"access"`
	Refresh              string      `json:"refresh"`
	TokenType            string      `json:"token_type"`
	ExpiresIn            int         `json:"expires_in"`
	User                 *model.User `json:"user"`
	UsedBackupCode       bool        `json:"used_backup_code,omitempty"`
	BackupCodesRemaining *int        `json:"backup_codes_remaining,omitempty"`
}

// Login handles password login with an optional second factor
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Email and password are required")
		return
	}

	res, err := h.authSvc.Login(r.Context(), actor(r), service.LoginRequest{
		Email:        req.Email,
		Password:     req.Password,
		MFACode:      req.MFACode,
		CaptchaToken: captchaToken(r, req.CaptchaToken),
	})
	if err != nil {
		var extra map[string]interface{}
		switch {
		case errors.Is(err, service.ErrEmailNotVerified):
			extra = map[string]interface{}{"code": "email_not_verified"}
		case errors.Is(err, service.ErrMFARequired):
			extra = map[string]interface{}{"code": "mfa_required", "mfa_required": true}
		}
		h.writeServiceError(w, r, err, "login", extra)
		return
	}

	resp := loginResponse{
		Access:         res.Tokens.Access,
		Refresh:        res.Tokens.Refresh,
		TokenType:      res.Tokens.TokenType,
		ExpiresIn:      res.Tokens.ExpiresIn,
		User:           res.User,
		UsedBackupCode: res.UsedBackupCode,
	}
	if res.UsedBackupCode {
		remaining := res.BackupCodesRemaining
		resp.BackupCodesRemaining = &remaining
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Token Handlers ---

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Logout blacklists the refresh token and the access token used for the
// call. The response does not reveal whether the refresh token was known.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	err := h.authSvc.Logout(r.Context(), actor(r), req.Refresh, middleware.GetClaims(r.Context()))
	switch {
	case err == nil, errors.Is(err, service.ErrTokenInvalid):
		writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out."})
	default:
		h.writeServiceError(w, r, err, "logout", nil)
	}
}

// RefreshToken rotates a refresh token
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	pair, err := h.authSvc.Refresh(r.Context(), actor(r), req.Refresh)
	if err != nil {
		if service.IsTokenError(err) {
			writeError(w, r, http.StatusUnauthorized, "token_invalid", "The refresh token is invalid or expired")
			return
		}
		h.writeServiceError(w, r, err, "refresh", nil)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// --- Email Verification Handlers ---

// VerifyEmail redeems the token from a verification link
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	err := h.authSvc.VerifyEmail(r.Context(), actor(r), r.PathValue("token"))
	if err != nil {
		h.writeServiceError(w, r, err, "verify_email", map[string]interface{}{"verified": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"verified": true,
		"message":  "Email verified successfully.",
	})
}

type emailRequest struct {
	Email        string `json:"email"`
	CaptchaToken string `json:"captcha_token"`
}

// ResendVerification always answers with the same body
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	h.authSvc.ResendVerification(r.Context(), actor(r), req.Email)
	writeJSON(w, http.StatusOK, map[string]string{"message": resendMessage})
}

// --- Password Handlers ---

// PasswordResetRequest emails a reset link. Apart from CAPTCHA failures the
// response is identical for known and unknown addresses.
func (h *Handler) PasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	err := h.authSvc.RequestPasswordReset(r.Context(), actor(r), service.PasswordResetRequest{
		Email:        req.Email,
		CaptchaToken: captchaToken(r, req.CaptchaToken),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "password_reset_request", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": resetMessage})
}

// PasswordResetValidate checks a reset token without consuming it
func (h *Handler) PasswordResetValidate(w http.ResponseWriter, r *http.Request) {
	if err := h.authSvc.ValidateResetToken(r.Context(), r.PathValue("token")); err != nil {
		h.writeServiceError(w, r, err, "password_reset_validate", map[string]interface{}{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

type passwordResetConfirmRequest struct {
	Password  string `json:"password"`
	Password2 string `json:"password2,omitempty"`
}

// PasswordResetConfirm sets a new password through a reset token
func (h *Handler) PasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.Password2 != "" && req.Password2 != req.Password {
		h.writeServiceError(w, r, service.ErrPasswordMismatch, "password_reset_confirm", nil)
		return
	}

	if err := h.authSvc.ConfirmPasswordReset(r.Context(), actor(r), r.PathValue("token"), req.Password); err != nil {
		h.writeServiceError(w, r, err, "password_reset_confirm", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset. You can now log in."})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword handles POST /auth/password/change
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Old and new password are required")
		return
	}

	if err := h.authSvc.ChangePassword(r.Context(), actor(r), req.OldPassword, req.NewPassword); err != nil {
		h.writeServiceError(w, r, err, "change_password", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed. Please log in again."})
}

// GetCurrentUser returns the authenticated user
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.authSvc.CurrentUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, "current_user", nil)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
