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

// UsersHandler is the admin surface over identities. Accounts are only ever
// deactivated, never deleted.
type UsersHandler struct {
	DB       *gorm.DB
	Sessions *services.SessionService
	Audit    *services.AuditService
}

func NewUsersHandler(db *gorm.DB, sessions *services.SessionService, audit *services.AuditService) *UsersHandler {
	return &UsersHandler{DB: db, Sessions: sessions, Audit: audit}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := h.DB.Model(&models.User{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			searchValue,
			searchValue,
			searchValue,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

// Deactivate disables an account and revokes all of its sessions. The row
// stays in place so audit history keeps resolving.
func (h *UsersHandler) Deactivate(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)
	if admin == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if userID == admin.ID {
		return utils.Error(c, fiber.StatusBadRequest, "cannot deactivate your own account")
	}

	result := h.DB.Model(&models.User{}).Where("id = ?", userID).Update("active", false)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deactivating user")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	if err := h.Sessions.RevokeAllForUser(c.Context(), userID, ""); err != nil {
		logger.Error("session_revoke_failed", err, map[string]interface{}{
			"user_id": userID.String(),
		})
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &admin.ID,
		Action:       "user.deactivate",
		ResourceType: "user",
		ResourceID:   &userID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deactivated"})
}
