package metrics

import (
	"errors"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// errorReason labels an error with a bounded set of values.
func errorReason(err error) string {
	var (
		rateLimit *models.RateLimitError
		transient *models.TransientError
		auth      *models.AuthError
		invalid   *models.InvalidArgumentError
		quota     *models.QuotaExceededError
		malformed *models.MalformedResponseError
		exhausted *models.RetriesExhaustedError
	)

	switch {
	case err == nil:
		return "none"
	case errors.As(err, &exhausted):
		return "retries_exhausted"
	case errors.As(err, &rateLimit):
		return "rate_limit"
	case errors.As(err, &transient):
		return "transient"
	case errors.As(err, &auth):
		return "auth"
	case errors.As(err, &invalid):
		return "invalid_argument"
	case errors.As(err, &quota):
		return "quota_exceeded"
	case errors.As(err, &malformed):
		return "malformed"
	default:
		return "other"
	}
}

// Outcome labels a finished operation.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return errorReason(err)
}
