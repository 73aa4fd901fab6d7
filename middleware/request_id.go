package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sociohiro-backend/internal/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware adds a unique request ID to each request and a
// request-scoped logger carrying it.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = generateRequestID()
		}

		c.Set("request_id", requestID)
		c.Set("logger", logger.With("request_id", requestID))
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from context
func GetRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// Log returns the request-scoped logger.
func Log(c *gin.Context) *slog.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return logger.With()
}

func generateRequestID() string {
	return uuid.NewString()
}
