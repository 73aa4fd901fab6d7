package utils

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sociohiro-backend/internal/graph"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithUnauthorized sends a 401 Unauthorized error
func RespondWithUnauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, "unauthorized", message, nil)
}

// RespondWithForbidden sends a 403 Forbidden error
func RespondWithForbidden(c *gin.Context, message string) {
	RespondWithError(c, http.StatusForbidden, "forbidden", message, nil)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}


// RespondWithUnprocessable sends a 422 Unprocessable Entity error
func RespondWithUnprocessable(c *gin.Context, errorCode, message string) {
	RespondWithError(c, http.StatusUnprocessableEntity, errorCode, message, nil)
}

// GraphErrorStatus maps a Graph API failure to the status the dashboard sees.
func GraphErrorStatus(reason graph.Reason) int {
	switch reason {
	case graph.ReasonAuthExpired:
		return http.StatusUnauthorized
	case graph.ReasonRateLimited:
		return http.StatusTooManyRequests
	case graph.ReasonNotFound:
		return http.StatusNotFound
	case graph.ReasonValidation, graph.ReasonNotLinked:
		return http.StatusUnprocessableEntity
	case graph.ReasonNetwork, graph.ReasonTimeout, graph.ReasonUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// RespondWithGraphError sends the envelope for a failed Graph API call.
func RespondWithGraphError(c *gin.Context, err error) {
	reason := graph.ReasonOf(err)
	details := gin.H{"reason": reason}
	var gerr *graph.Error
	if errors.As(err, &gerr) {
		details["retryable"] = gerr.Retryable()
		if gerr.Code != 0 {
			details["code"] = gerr.Code
		}
	}
	RespondWithError(c, GraphErrorStatus(reason), strings.ToLower(string(reason)), err.Error(), details)
}
