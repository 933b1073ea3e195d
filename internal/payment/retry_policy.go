// internal/payment/retry_policy.go

package payment

import (
	"errors"
	"net"
	"net/http"
	"syscall"

	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v79"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
)

// IsRetryableError reports whether calling the provider again may succeed.
func IsRetryableError(err error) bool {
	if err == nil { // No error, no retry needed
		return false
	}
	return isRetryableStripeError(err) || isRetryablePayPalError(err) || isRetryableNetworkError(err) || isRetryableSystemError(err)
}

func isRetryableStripeError(err error) bool {
	var stripeError *stripe.Error
	// If the error is not a Stripe error, it is not retryable by this policy.
	if !errors.As(err, &stripeError) {
		return false
	}
	// HTTP 400-499: Client Error (Invalid Request) -> STOP
	// HTTP 500-599: Server Error (Stripe Down) -> RETRY
	if stripeError.HTTPStatusCode >= 500 && stripeError.HTTPStatusCode < 600 {
		return true
	}
	// Stripe throttling / locking -> retry
	switch stripeError.Code {
	case stripe.ErrorCodeRateLimit,
		stripe.ErrorCodeLockTimeout:
		return true
	}
	return false
}

func isRetryablePayPalError(err error) bool {
	var ppErr *paypal.ErrorResponse
	if !errors.As(err, &ppErr) || ppErr.Response == nil {
		return false
	}
	code := ppErr.Response.StatusCode
	return code == 429 || (code >= 500 && code < 600)
}

func isRetryableNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRetryableSystemError(err error) bool {
	// Connection Refused / Reset
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// IsPermanentLookupError reports whether asking the provider about a checkout
// again cannot give a different answer: the provider is no longer enabled, or
// it rejected the reference itself. Auth and rate limit failures are operator
// or load problems and stay transient.
func IsPermanentLookupError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domainErr.ErrProviderDisabled) {
		return true
	}
	if errors.Is(err, domainErr.ErrProviderUnavailable) || IsRetryableError(err) {
		return false
	}

	code := 0
	var stripeErr *stripe.Error
	var ppErr *paypal.ErrorResponse
	switch {
	case errors.As(err, &stripeErr):
		code = stripeErr.HTTPStatusCode
	case errors.As(err, &ppErr) && ppErr.Response != nil:
		code = ppErr.Response.StatusCode
	}
	switch code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
