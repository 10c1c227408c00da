// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrValidation = errors.New("validation failed")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrConfiguration):
		// operators get the detail through logs, never the caller
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case shared.IsAuthenticationFailure(err):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrThrottled):
		Problem(w, http.StatusTooManyRequests, "Too Many Requests", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// RespondThrottled writes a 429 problem carrying a Retry-After hint.
func RespondThrottled(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	JSON(w, http.StatusTooManyRequests, ThrottleProblem{
		ProblemDetail: ProblemDetail{
			Title:  "Too Many Requests",
			Status: http.StatusTooManyRequests,
			Detail: shared.ErrThrottled.Error(),
		},
		RetryAfter: secs,
	})
}
