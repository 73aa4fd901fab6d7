package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/huandu/facebook"
	"github.com/sony/gobreaker"
)

// Reason classifies a failed Graph API call so callers can branch without
// parsing messages.
type Reason string

const (
	ReasonNetwork     Reason = "NETWORK"
	ReasonTimeout     Reason = "TIMEOUT"
	ReasonUpstream    Reason = "UPSTREAM"
	ReasonAuthExpired Reason = "AUTH_EXPIRED"
	ReasonRateLimited Reason = "RATE_LIMITED"
	ReasonNotFound    Reason = "NOT_FOUND"
	ReasonValidation  Reason = "VALIDATION"
	ReasonNotLinked   Reason = "NOT_LINKED"
	ReasonUnknown     Reason = "UNKNOWN"
)

// ErrEmptyToken is returned by NewClient when no access token is given.
var ErrEmptyToken = errors.New("graph: access token is required")

// Error is the single error shape returned by every Client method.
type Error struct {
	Op         string // e.g. "fetch pages"
	Reason     Reason
	StatusCode int // 0 when no HTTP response was received
	Code       int // Graph API error code
	Subcode    int // Graph API error_subcode
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("Failed to %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same call may succeed without
// changing the input or re-authenticating.
func (e *Error) Retryable() bool {
	switch e.Reason {
	case ReasonNetwork, ReasonTimeout, ReasonUpstream, ReasonRateLimited:
		return true
	}
	return false
}

// ReasonOf extracts the reason from err, or ReasonUnknown.
func ReasonOf(err error) Reason {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Reason
	}
	return ReasonUnknown
}

// IsRetryable reports whether err is a retryable Graph API error.
func IsRetryable(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Retryable()
}

// Graph API error codes, see
// https://developers.facebook.com/docs/graph-api/guides/error-handling
const (
	codeUnknownAPI        = 1
	codeServiceDown       = 2
	codeAppRateLimit      = 4
	codePermission        = 10
	codeUserRateLimit     = 17
	codePageRateLimit     = 32
	codeInvalidParameter  = 100
	codeSessionExpired    = 102
	codeInvalidToken      = 190
	codeCustomRateLimit   = 613
	codeObjectNotExist    = 803
	codeIGRateLimit       = 80002
	subcodeObjectNotExist = 33
)

// classify turns the outcome of a failed call into an *Error.
// status is the HTTP status code observed on the wire (0 if none).
func classify(ctx context.Context, op string, status int, err error) *Error {
	gerr := &Error{Op: op, StatusCode: status, Err: err, Message: err.Error()}

	var fbErr *facebook.Error
	switch {
	case errors.As(err, &fbErr):
		gerr.Code = fbErr.Code
		gerr.Subcode = fbErr.ErrorSubcode
		gerr.Message = fbErr.Message
		gerr.Reason = reasonForGraphCode(fbErr.Code, fbErr.ErrorSubcode, fbErr.Type, status)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		gerr.Reason = ReasonNetwork
		gerr.Message = "Instagram API temporarily unavailable (circuit open)"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		gerr.Reason = ReasonTimeout
		gerr.Message = "request timed out"
	case status == 0:
		gerr.Reason = ReasonNetwork
	default:
		gerr.Reason = reasonForStatus(status)
	}

	return gerr
}

func reasonForGraphCode(code, subcode int, errType string, status int) Reason {
	switch code {
	case codeInvalidToken, codeSessionExpired:
		return ReasonAuthExpired
	case codeAppRateLimit, codeUserRateLimit, codePageRateLimit, codeCustomRateLimit, codeIGRateLimit:
		return ReasonRateLimited
	case codeObjectNotExist:
		return ReasonNotFound
	case codeInvalidParameter:
		if subcode == subcodeObjectNotExist {
			return ReasonNotFound
		}
		return ReasonValidation
	case codePermission:
		return ReasonValidation
	case codeUnknownAPI, codeServiceDown:
		return ReasonUpstream
	}

	if code >= 200 && code < 300 {
		// permission errors
		return ReasonValidation
	}
	if errType == "OAuthException" && status == http.StatusUnauthorized {
		return ReasonAuthExpired
	}
	return reasonForStatus(status)
}

func reasonForStatus(status int) Reason {
	switch {
	case status == http.StatusUnauthorized:
		return ReasonAuthExpired
	case status == http.StatusTooManyRequests:
		return ReasonRateLimited
	case status == http.StatusNotFound:
		return ReasonNotFound
	case status == http.StatusBadRequest, status == http.StatusForbidden, status == http.StatusUnprocessableEntity:
		return ReasonValidation
	case status >= 500:
		return ReasonUpstream
	}
	return ReasonUnknown
}
