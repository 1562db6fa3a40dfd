package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/loanworks/backend/pkg/logger"
)

const requestIDKey = "requestID"

// RequestLogger assigns a request id and logs one line per request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := uuid.New().String()
		c.Locals(requestIDKey, requestID)
		c.Set("X-Request-ID", requestID)

		start := time.Now()
		err := c.Next()

		logger.Info("http_request", map[string]interface{}{
			"request_id": requestID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"ip":         c.IP(),
			"duration":   time.Since(start).String(),
		})

		return err
	}
}

// SecurityLogger records rejected requests separately so they stand out in
// the log stream.
func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if status == fiber.StatusUnauthorized || status == fiber.StatusForbidden || status == fiber.StatusTooManyRequests {
			logger.Warn("security_event", map[string]interface{}{
				"request_id": GetRequestID(c),
				"method":     c.Method(),
				"path":       c.Path(),
				"status":     status,
				"ip":         c.IP(),
			})
		}

		return err
	}
}

func GetRequestID(c *fiber.Ctx) string {
	value, _ := c.Locals(requestIDKey).(string)
	return value
}
