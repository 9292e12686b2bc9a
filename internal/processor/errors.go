package processor

import (
	"errors"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"
)

// IsRateLimit reports whether the processor rejected the call for exceeding
// its request rate.
func IsRateLimit(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == stripe.ErrorCodeRateLimit || se.HTTPStatusCode == http.StatusTooManyRequests
}

// IsAccountUnusable reports errors tied to a single connected account
// (invalid account, revoked permission). During multi-account batch jobs
// these are skipped rather than failing the batch.
func IsAccountUnusable(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code == stripe.ErrorCodeAccountInvalid {
		return true
	}
	return se.HTTPStatusCode == http.StatusUnauthorized || se.HTTPStatusCode == http.StatusForbidden
}
