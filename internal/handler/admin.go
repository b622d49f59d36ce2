package handler

import (
	"net/http"
	"strconv"

	"github.com/collabhub/collabhub/internal/model"
)

const (
	defaultAdminListLimit = 50
	maxAdminListLimit     = 500
)

func listLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultAdminListLimit
	}
	return min(limit, maxAdminListLimit)
}

// AdminSecurityEvents handles GET /auth/admin/security-events
func (h *Handler) AdminSecurityEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := h.security.List(r.Context(), model.SecurityEventFilter{
		UserID:    q.Get("user_id"),
		EventType: model.SecurityEventType(q.Get("type")),
		Limit:     listLimit(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "admin_security_events", nil)
		return
	}
	if events == nil {
		events = []model.SecurityEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": events, "count": len(events)})
}

// AdminAuditLogs handles GET /auth/admin/audit-logs
func (h *Handler) AdminAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := h.audit.List(r.Context(), model.AuditLogFilter{
		EntityType: q.Get("entity"),
		UserID:     q.Get("user_id"),
		Limit:      listLimit(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "admin_audit_logs", nil)
		return
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": logs, "count": len(logs)})
}

type unlockRequest struct {
	Username string `json:"username"`
	IP       string `json:"ip"`
}

// AdminUnlockAccount handles POST /auth/admin/unlock
func (h *Handler) AdminUnlockAccount(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := readJSON(w, r, &req); err != nil || req.Username == "" || req.IP == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Username and ip are required")
		return
	}

	if err := h.guard.Unlock(r.Context(), actor(r), req.Username, req.IP); err != nil {
		h.writeServiceError(w, r, err, "admin_unlock", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Account unlocked successfully",
		"username": req.Username,
		"ip":       req.IP,
	})
}

type roleRequest struct {
	Role string `json:"role"`
}

// AdminChangeRole handles PUT /auth/admin/users/{id}/role
func (h *Handler) AdminChangeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := readJSON(w, r, &req); err != nil || req.Role == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Role is required")
		return
	}

	user, err := h.authSvc.ChangeRole(r.Context(), actor(r), r.PathValue("id"), req.Role)
	if err != nil {
		h.writeServiceError(w, r, err, "admin_change_role", nil)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
