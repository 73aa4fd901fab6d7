package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sociohiro-backend/internal/telemetry"
)

// TracingMiddleware provides OpenTelemetry tracing for Gin
func TracingMiddleware() gin.HandlerFunc {
	return otelgin.Middleware("sociohiro-backend")
}

// EnrichTrace adds account and request attributes to the active span.
func EnrichTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		span.SetAttributes(
			attribute.String("request.id", GetRequestID(c)),
			attribute.String("http.client_ip", c.ClientIP()),
		)

		c.Next()

		if claims := GetClaims(c); claims != nil {
			span.SetAttributes(
				attribute.String("account.id", claims.AccountID),
				attribute.String("session.id", claims.SessionID),
			)
		}
		span.SetAttributes(
			attribute.Int("http.response.status_code", c.Writer.Status()),
			attribute.Int("http.response.size", c.Writer.Size()),
		)
	}
}

// MetricsMiddleware records request metrics
func MetricsMiddleware(metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
