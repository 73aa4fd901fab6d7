package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sociohiro-backend/utils"
)

// RequestSizeLimit rejects bodies larger than maxSize.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size": maxSize,
					"received": c.Request.ContentLength,
				})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// BodyCap caps how much of the body handlers can read without rejecting the
// request up front. Reads past maxSize fail with *http.MaxBytesError and the
// handler decides how to answer.
func BodyCap(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
