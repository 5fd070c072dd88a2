package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimitMiddleware is a fixed-window counter per path and client. The
// counter and its expiry are set in one pipeline so a crash between the two
// cannot leave a key without TTL.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("rl:%s:%s", c.Path(), c.IP())

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		pipe := rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			return c.Next() // fail open
		}

		count := incr.Val()
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		if remaining := int64(limit) - count; remaining > 0 {
			c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		} else {
			c.Set("X-RateLimit-Remaining", "0")
		}

		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}

		return c.Next()
	}
}
