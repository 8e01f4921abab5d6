package middleware

import (
	"log"
	"time"

	"gstrecon/internal/caching"
	"gstrecon/internal/common"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig bounds requests per client over a sliding window backed by
// the cache service, so limits hold across replicas.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
}

// DefaultRateLimitConfig allows 120 requests per minute per client.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 120,
		Window:            time.Minute,
	}
}

// RateLimitMiddleware throttles by client IP plus request path class.
type RateLimitMiddleware struct {
	cache  caching.CacheService
	config RateLimitConfig
}

func NewRateLimitMiddleware(cache caching.CacheService, config RateLimitConfig) *RateLimitMiddleware {
	if config.RequestsPerWindow <= 0 {
		config = DefaultRateLimitConfig()
	}
	return &RateLimitMiddleware{cache: cache, config: config}
}

// Limit rejects requests over the configured budget with 429. Cache outages
// fail open: reconciliation availability matters more than strict limits.
func (rl *RateLimitMiddleware) Limit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rl.cache == nil {
				return next(c)
			}

			key := c.RealIP() + ":" + c.Path()
			ctx := c.Request().Context()

			limited, err := rl.cache.IsRateLimited(ctx, key, rl.config.RequestsPerWindow)
			if err != nil {
				log.Printf("rate limit check failed for %s: %v", key, err)
				return next(c)
			}
			if limited {
				return common.SendTooManyRequests(c)
			}

			if err := rl.cache.IncrementRateLimit(ctx, key, rl.config.Window); err != nil {
				log.Printf("rate limit increment failed for %s: %v", key, err)
			}
			return next(c)
		}
	}
}
