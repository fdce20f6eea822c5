package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"

	"order-pipeline/internal/config"
)

// RedisRateLimit is a fixed-window per-IP limiter backed by redis, shared
// across instances. A redis outage fails open: throttling is protection, not a
// correctness gate.
func RedisRateLimit(rdb *redis.Client, cfg config.RateLimit) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			window := time.Now().Unix() / int64(cfg.Window.Seconds())
			key := fmt.Sprintf("ratelimit:%s:%d", c.RealIP(), window)

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				return next(c)
			}
			if count == 1 {
				rdb.Expire(ctx, key, cfg.Window)
			}

			remaining := int64(cfg.Limit) - count
			if remaining < 0 {
				remaining = 0
			}
			reset := (window + 1) * int64(cfg.Window.Seconds())
			c.Response().Header().Set("RateLimit-Limit", strconv.Itoa(cfg.Limit))
			c.Response().Header().Set("RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			c.Response().Header().Set("RateLimit-Reset", strconv.FormatInt(reset, 10))

			if count > int64(cfg.Limit) {
				return c.JSON(429, map[string]string{"error": "rate limit exceeded, retry later"})
			}
			return next(c)
		}
	}
}
