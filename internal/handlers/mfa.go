package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/loanworks/backend/internal/middleware"
	"github.com/loanworks/backend/internal/services"
	"github.com/loanworks/backend/pkg/logger"
	"github.com/loanworks/backend/pkg/utils"
	"gorm.io/gorm"
)

type MFAHandler struct {
	DB          *gorm.DB
	TOTP        *services.TOTPService
	BackupCodes *services.BackupCodeService
	Audit       *services.AuditService
}

func NewMFAHandler(db *gorm.DB, totpService *services.TOTPService, backupCodes *services.BackupCodeService, audit *services.AuditService) *MFAHandler {
	return &MFAHandler{DB: db, TOTP: totpService, BackupCodes: backupCodes, Audit: audit}
}

func (h *MFAHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	cred, err := h.TOTP.Credential(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}

	remaining, err := h.BackupCodes.Count(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}

	totpEnabled := cred != nil && cred.Enabled
	var confirmedAt *time.Time
	if cred != nil {
		confirmedAt = cred.ConfirmedAt
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"mfaEnabled":           totpEnabled,
		"totpEnabled":          totpEnabled,
		"totpConfirmedAt":      confirmedAt,
		"backupCodesRemaining": remaining,
	})
}

// TOTPSetup starts enrollment and returns the secret plus provisioning URI
// for the authenticator app. The credential stays unusable until confirmed.
func (h *MFAHandler) TOTPSetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	secret, uri, err := h.TOTP.GenerateSecret(c.Context(), user)
	if err != nil {
		if errors.Is(err, services.ErrTOTPAlreadyEnabled) {
			return utils.Error(c, fiber.StatusConflict, "TOTP is already enabled")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate TOTP secret")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"secret": secret,
		"qrUri":  uri,
	})
}

type confirmTOTPRequest struct {
	Code string `json:"code"`
}

// TOTPConfirm proves possession of the enrolled secret, enables the
// credential and hands out the one-time display of the backup code batch.
func (h *MFAHandler) TOTPConfirm(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req confirmTOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	if err := h.TOTP.Confirm(c.Context(), user, req.Code, time.Now()); err != nil {
		switch {
		case errors.Is(err, services.ErrTOTPNotConfigured):
			return utils.Error(c, fiber.StatusBadRequest, "TOTP setup not started")
		case errors.Is(err, services.ErrTOTPAlreadyEnabled):
			return utils.Error(c, fiber.StatusConflict, "TOTP is already enabled")
		case errors.Is(err, services.ErrInvalidSecondFactor):
			return utils.Error(c, fiber.StatusBadRequest, "invalid TOTP code")
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "failed to enable TOTP")
		}
	}

	codes, err := h.BackupCodes.Regenerate(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate backup codes")
	}

	logger.Info("mfa_totp_enabled", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "mfa.totp_enabled",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"backupCodes": codes,
	})
}

type disableTOTPRequest struct {
	Password string `json:"password"`
}

func (h *MFAHandler) TOTPDisable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req disableTOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "password is required")
	}
	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid password")
	}

	cred, err := h.TOTP.Credential(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}
	if cred == nil {
		return utils.Error(c, fiber.StatusBadRequest, "TOTP is not configured")
	}

	if err := h.DB.Model(cred).Updates(map[string]interface{}{
		"enabled":           false,
		"secret":            "",
		"confirmed_at":      nil,
		"last_used_counter": 0,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to disable TOTP")
	}

	if err := h.BackupCodes.RemoveAll(c.Context(), user.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to clear backup codes")
	}

	logger.Info("mfa_totp_disabled", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "mfa.totp_disabled",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "TOTP disabled"})
}

type regenerateBackupRequest struct {
	Password string `json:"password"`
}

// RegenerateBackupCodes replaces the whole code set; every previously issued
// code stops working the moment this returns.
func (h *MFAHandler) RegenerateBackupCodes(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req regenerateBackupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "password is required")
	}
	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid password")
	}

	cred, err := h.TOTP.Credential(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}
	if cred == nil || !cred.Enabled {
		return utils.Error(c, fiber.StatusBadRequest, "MFA is not enabled")
	}

	codes, err := h.BackupCodes.Regenerate(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to regenerate backup codes")
	}

	logger.Info("mfa_backup_codes_regenerated", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "mfa.backup_codes_regenerated",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"backupCodes": codes,
	})
}
