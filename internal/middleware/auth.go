package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/loanworks/backend/internal/models"
	"github.com/loanworks/backend/internal/observability/metrics"
	"github.com/loanworks/backend/internal/services"
	"github.com/loanworks/backend/pkg/logger"
	"github.com/loanworks/backend/pkg/utils"
	"gorm.io/gorm"
)

const (
	currentUserKey    = "currentUser"
	currentSessionKey = "currentSession"
)

type AuthMiddleware struct {
	DB       *gorm.DB
	Sessions *services.SessionService
}

func NewAuthMiddleware(db *gorm.DB, sessions *services.SessionService) *AuthMiddleware {
	return &AuthMiddleware{DB: db, Sessions: sessions}
}

func CORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: "http://localhost:3001,http://127.0.0.1:3001",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// RequireAuth resolves the bearer token to a live session. Invalid and
// expired tokens answer 401 so the client logs itself out; role checks live
// in AdminOnly and answer 403, which must never be conflated with 401.
// Datastore failure answers 503 — an infrastructure outage is not a reason
// to log anyone out.
func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("auth_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("auth_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	session, err := a.Sessions.Validate(c.Context(), tokenString, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionExpired):
			metrics.SessionValidationsTotal.WithLabelValues("expired").Inc()
			return utils.Error(c, fiber.StatusUnauthorized, "session expired")
		case errors.Is(err, services.ErrSessionNotFound):
			metrics.SessionValidationsTotal.WithLabelValues("not_found").Inc()
			return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
		default:
			logger.Error("session_validation_failed", err, map[string]interface{}{
				"ip":   c.IP(),
				"path": c.Path(),
			})
			return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
		}
	}

	var user models.User
	if err := a.DB.First(&user, "id = ?", session.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.SessionValidationsTotal.WithLabelValues("not_found").Inc()
			return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
		}
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}

	if !user.Active {
		metrics.SessionValidationsTotal.WithLabelValues("inactive_user").Inc()
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	metrics.SessionValidationsTotal.WithLabelValues("valid").Inc()
	c.Locals(currentUserKey, &user)
	c.Locals(currentSessionKey, session)
	return c.Next()
}

// AdminOnly is a role check on top of RequireAuth. A 403 here means "logged
// in but not allowed" — clients must not treat it as a logout signal.
func AdminOnly(c *fiber.Ctx) error {
	user := GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if user.Role != models.UserRoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "admin access required")
	}
	return c.Next()
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

func GetCurrentSession(c *fiber.Ctx) *models.Session {
	value := c.Locals(currentSessionKey)
	if value == nil {
		return nil
	}
	session, ok := value.(*models.Session)
	if !ok {
		return nil
	}
	return session
}
