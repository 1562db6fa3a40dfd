package middleware

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/loanworks/backend/pkg/utils"
	"golang.org/x/time/rate"
)

// Throttle applies a coarse per-IP token bucket in front of the auth routes.
// It is independent of the per-account sliding-window limiter: this one only
// shields the endpoints from a single noisy origin.
func Throttle(rps rate.Limit, burst int) fiber.Handler {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		limiter, ok := limiters[ip]
		if !ok {
			limiter = rate.NewLimiter(rps, burst)
			limiters[ip] = limiter
		}
		return limiter
	}

	return func(c *fiber.Ctx) error {
		if !limiterFor(c.IP()).Allow() {
			return utils.Error(c, fiber.StatusTooManyRequests, "too many requests")
		}
		return c.Next()
	}
}
