package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/loanworks/backend/internal/middleware"
	"github.com/loanworks/backend/internal/services"
	"github.com/loanworks/backend/pkg/utils"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func getRequestID(c *fiber.Ctx) string {
	return middleware.GetRequestID(c)
}

func requestOrigin(c *fiber.Ctx) services.Origin {
	return services.Origin{
		IP:        c.IP(),
		UserAgent: c.Get("User-Agent"),
	}
}

// authError maps service-layer authentication failures onto HTTP status
// classes. Anything unrecognized is an infrastructure failure and answers
// 503 so clients do not mistake an outage for a revoked session.
func authError(c *fiber.Ctx, err error) error {
	var rateErr *services.RateLimitError
	if errors.As(err, &rateErr) {
		c.Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())+1))
		return utils.Error(c, fiber.StatusTooManyRequests, "too many attempts")
	}

	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, services.ErrInvalidSecondFactor):
		return utils.Error(c, fiber.StatusUnauthorized, "invalid second factor code")
	case errors.Is(err, services.ErrSessionExpired), errors.Is(err, services.ErrSessionNotFound):
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired session")
	default:
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}
}
