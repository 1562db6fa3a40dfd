package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/loanworks/backend/internal/middleware"
	"github.com/loanworks/backend/internal/services"
	"github.com/loanworks/backend/pkg/logger"
	"github.com/loanworks/backend/pkg/utils"
	"gorm.io/gorm"
)

type SessionsHandler struct {
	DB       *gorm.DB
	Sessions *services.SessionService
	Audit    *services.AuditService
}

func NewSessionsHandler(db *gorm.DB, sessions *services.SessionService, audit *services.AuditService) *SessionsHandler {
	return &SessionsHandler{DB: db, Sessions: sessions, Audit: audit}
}

// List shows the caller's live sessions so stale logins on other devices can
// be spotted and revoked.
func (h *SessionsHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	current := middleware.GetCurrentSession(c)
	if user == nil || current == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	sessions, err := h.Sessions.ListForUser(c.Context(), user.ID, time.Now().UTC())
	if err != nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}

	type sessionView struct {
		ID            string    `json:"id"`
		IssuedAt      time.Time `json:"issuedAt"`
		ExpiresAt     time.Time `json:"expiresAt"`
		IPAddress     string    `json:"ipAddress"`
		UserAgent     string    `json:"userAgent"`
		TwoFAComplete bool      `json:"twoFAComplete"`
		Current       bool      `json:"current"`
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:            s.ID.String(),
			IssuedAt:      s.IssuedAt,
			ExpiresAt:     s.ExpiresAt,
			IPAddress:     s.IPAddress,
			UserAgent:     s.UserAgent,
			TwoFAComplete: s.TwoFAComplete,
			Current:       s.ID == current.ID,
		})
	}

	return utils.Success(c, fiber.StatusOK, views)
}

// Revoke deletes one of the caller's sessions by id.
func (h *SessionsHandler) Revoke(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	sessionID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid session id")
	}

	revoked, err := h.Sessions.RevokeByID(c.Context(), user.ID, sessionID)
	if err != nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}
	if !revoked {
		return utils.Error(c, fiber.StatusNotFound, "session not found")
	}

	logger.Info("session_revoked", map[string]interface{}{
		"user_id":    user.ID.String(),
		"session_id": sessionID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "session.revoke",
		ResourceType: "session",
		ResourceID:   &sessionID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "session revoked"})
}
