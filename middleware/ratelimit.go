package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"sociohiro-backend/internal/config"
	"sociohiro-backend/internal/logger"
	"sociohiro-backend/utils"
)

// RateLimitMiddleware limits requests per IP + endpoint combination using Redis.
// The webhook and health endpoints are never limited.
func RateLimitMiddleware(rdb redis.Cmdable, cfg *config.Config) gin.HandlerFunc {
	window := time.Duration(cfg.RateLimitWindow) * time.Second

	return func(c *gin.Context) {
		switch c.FullPath() {
		case "/health", "/webhook", "/webhook/instagram":
			c.Next()
			return
		}

		key := "ratelimit:" + c.ClientIP() + ":" + c.FullPath()
		ctx := c.Request.Context()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// Fail open when Redis is down
			logger.Warn("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		if count > int64(cfg.RateLimitReqs) {
			c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RateLimitReqs))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))

			utils.RespondWithError(c, http.StatusTooManyRequests,
				"rate_limit_exceeded",
				"Too many requests. Please try again later.",
				gin.H{
					"retry_after": cfg.RateLimitWindow,
					"limit":       cfg.RateLimitReqs,
				})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RateLimitReqs))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(cfg.RateLimitReqs-int(count)))
		c.Next()
	}
}
