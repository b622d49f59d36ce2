package handler

import (
	"net/http"

	"github.com/collabhub/collabhub/internal/middleware"
	"github.com/collabhub/collabhub/internal/model"
)

const ownSecurityEventLimit = 50

// ExportAccount returns everything held about the caller
func (h *Handler) ExportAccount(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	export, err := h.gdprSvc.Export(r.Context(), a, a.UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "account_export", nil)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="collabhub-export.json"`)
	writeJSON(w, http.StatusOK, export)
}

type deleteAccountRequest struct {
	Password string `json:"password"`
	Reason   string `json:"reason,omitempty"`
}

// DeleteAccount erases the caller's account after a password check
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountRequest
	if err := readJSON(w, r, &req); err != nil || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Password is required")
		return
	}

	deletion, err := h.gdprSvc.DeleteAccount(r.Context(), actor(r), req.Password, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err, "account_delete", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Your account and personal data have been deleted.",
		"request_id": deletion.ID,
		"status":     deletion.Status,
	})
}

// SecurityEvents lists the caller's most recent security events
func (h *Handler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.security.List(r.Context(), model.SecurityEventFilter{
		UserID: middleware.GetUserID(r.Context()),
		Limit:  ownSecurityEventLimit,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "security_events", nil)
		return
	}
	if events == nil {
		events = []model.SecurityEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": events, "count": len(events)})
}

// ListConsents returns the caller's consent decisions by type
func (h *Handler) ListConsents(w http.ResponseWriter, r *http.Request) {
	consents, err := h.gdprSvc.Consents(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, "consent_list", nil)
		return
	}
	writeJSON(w, http.StatusOK, consents)
}

type consentRequest struct {
	ConsentType model.ConsentType `json:"consent_type"`
	Granted     bool              `json:"granted"`
	ConsentText string            `json:"consent_text,omitempty"`
}

// RecordConsent stores a consent decision for the caller
func (h *Handler) RecordConsent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := readJSON(w, r, &req); err != nil || req.ConsentType == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "consent_type is required")
		return
	}

	consent, err := h.gdprSvc.RecordConsent(r.Context(), actor(r), req.ConsentType, req.Granted, req.ConsentText)
	if err != nil {
		h.writeServiceError(w, r, err, "consent_record", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"consent_type": consent.ConsentType,
		"granted":      consent.Granted,
		"timestamp":    consent.Timestamp,
	})
}
