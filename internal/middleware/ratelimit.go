package middleware

import (
	"strconv"
	"time"

	"github.com/formsheet/server/internal/metrics"
	"github.com/formsheet/server/internal/ratelimit"
	"github.com/formsheet/server/pkg/logger"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// RateLimit admits requests per client IP. When the limiter backend errors the request is
// let through, so a Redis outage never takes the API down.
func RateLimit(limiter ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := limiter.Allow(c.UserContext(), c.IP())
		if err != nil {
			logger.Error("rate_limit_backend_failed", err, map[string]interface{}{
				"ip":   c.IP(),
				"path": c.Path(),
			})
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(time.Until(result.ResetAt).Seconds()) + 1
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			metrics.RateLimitedTotal.Inc()
			return utils.Error(c, fiber.StatusTooManyRequests, "too many requests, try again later")
		}

		return c.Next()
	}
}
