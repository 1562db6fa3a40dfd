package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/loanworks/backend/internal/middleware"
	"github.com/loanworks/backend/internal/models"
	"github.com/loanworks/backend/internal/services"
	"github.com/loanworks/backend/pkg/logger"
	"github.com/loanworks/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB       *gorm.DB
	Login    *services.LoginService
	Sessions *services.SessionService
	Audit    *services.AuditService
}

func NewAuthHandler(db *gorm.DB, login *services.LoginService, sessions *services.SessionService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{DB: db, Login: login, Sessions: sessions, Audit: audit}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := services.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return utils.Error(c, fiber.StatusBadRequest, "a valid email is required")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "firstName and lastName are required")
	}

	var count int64
	if err := h.DB.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}
	if count > 0 {
		return utils.Error(c, fiber.StatusConflict, "email is already registered")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         models.UserRoleUser,
		Active:       true,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) LoginPassword(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	result, err := h.Login.Authenticate(c.Context(), req.Email, req.Password, requestOrigin(c))
	if err != nil {
		return authError(c, err)
	}

	if result.Outcome == services.OutcomePending {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"mfaRequired":  true,
			"pendingToken": result.PendingToken,
			"expiresAt":    result.PendingExpiresAt,
		})
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &result.User.ID,
		Action:       "user.login",
		ResourceType: "user",
		ResourceID:   &result.User.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":     result.Token,
		"issuedAt":  result.Session.IssuedAt,
		"expiresAt": result.Session.ExpiresAt,
		"user":      result.User,
	})
}

type secondFactorRequest struct {
	PendingToken string `json:"pendingToken"`
	Code         string `json:"code"`
}

func (h *AuthHandler) CompleteSecondFactor(c *fiber.Ctx) error {
	var req secondFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.PendingToken == "" || req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "pendingToken and code are required")
	}

	result, err := h.Login.CompleteSecondFactor(c.Context(), req.PendingToken, req.Code, requestOrigin(c))
	if err != nil {
		return authError(c, err)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &result.User.ID,
		Action:       "user.mfa_login",
		ResourceType: "user",
		ResourceID:   &result.User.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":     result.Token,
		"issuedAt":  result.Session.IssuedAt,
		"expiresAt": result.Session.ExpiresAt,
		"user":      result.User,
	})
}

// Logout revokes the presented session. It answers OK even for an already
// revoked token so logout is idempotent from the client's point of view.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == "" || tokenString == authHeader {
		return utils.Error(c, fiber.StatusBadRequest, "missing bearer token")
	}

	if err := h.Sessions.Revoke(c.Context(), tokenString); err != nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	session := middleware.GetCurrentSession(c)
	if user == nil || session == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"identityId":    user.ID,
		"role":          user.Role,
		"twoFAComplete": session.TwoFAComplete,
		"expiresAt":     session.ExpiresAt,
		"user":          user,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword rotates the password hash and revokes every other session
// for the account, leaving only the session that made the change.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	session := middleware.GetCurrentSession(c)
	if user == nil || session == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	if err := h.DB.Model(user).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update password")
	}

	if err := h.Sessions.RevokeAllForUser(c.Context(), user.ID, session.TokenHash); err != nil {
		logger.Error("session_revoke_failed", err, map[string]interface{}{
			"user_id": user.ID.String(),
		})
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.password_changed",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}
