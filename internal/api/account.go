package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/farm-connect/internal/advisor"
	"github.com/ashureev/farm-connect/internal/identity"
)

// GetConfig returns the server configuration for the frontend.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"ai_enabled":       h.adv.Available(),
		"model":            h.model,
		"panels":           advisor.PanelNames(),
		"assistants":       advisor.AssistantNames(),
		"max_upload_bytes": h.maxUploadBytes,
	})
}

// GetMe returns the current user and their usage per panel.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, KindUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		h.logger.Error("Failed to load user", "user_id", userID, "error", err)
		Error(w, http.StatusUnauthorized, KindUnauthorized, "user not found")
		return
	}

	usage, err := h.repo.UsageSummary(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to load usage summary", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, KindInternal, "failed to load usage")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"user_id":    user.UserID,
		"username":   user.Username,
		"session_id": identity.SessionIDFromContext(r.Context()),
		"created_at": user.CreatedAt,
		"usage":      usage,
	})
}

// Health reports database connectivity and whether generation is configured.
// A missing API key degrades the service but does not fail the check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	db := "ok"
	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Error("Health check database ping failed", "error", err)
		status, code, db = "unavailable", http.StatusServiceUnavailable, "unreachable"
	} else if !h.adv.Available() {
		status = "degraded"
	}

	JSON(w, code, map[string]any{
		"status":       status,
		"database":     db,
		"ai_available": h.adv.Available(),
		"dashboards":   h.registry.Len(),
	})
}
