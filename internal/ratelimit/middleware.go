package ratelimit

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/chantiers-api/internal/observability"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

// KeyFunc derives the client key of a request.
type KeyFunc func(c *fiber.Ctx) string

// ClientIP keys requests by remote address, honoring the app's proxy header.
func ClientIP(c *fiber.Ctx) string {
	return "ip:" + c.IP()
}

// Middleware throttles requests and sets X-RateLimit-* headers.
func Middleware(limiter Limiter, keyFn KeyFunc, logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	if keyFn == nil {
		keyFn = ClientIP
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		key := keyFn(c)
		decision, err := limiter.Allow(c.UserContext(), key)
		if err != nil {
			logger.Error("rate limiter failed", zap.String("key", key), zap.Error(err))
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			metrics.RecordRateLimited()
			rateErr := apperrors.NewRateLimited(decision.RetryAfter)
			if de := apperrors.ToDomainError(rateErr); de != nil {
				if seconds, ok := de.Details["retry_after"].(int64); ok {
					c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(seconds, 10))
				}
			}
			return rateErr
		}
		return c.Next()
	}
}
