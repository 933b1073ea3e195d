// internal/domain/errors/errors.domain.go
package errors

import (
	"errors"
	"fmt"
)

// Standard Sentinel Errors
// The transport layers (chat replies, webhook HTTP codes) map these to
// user-facing messages and status codes. Everything else is internal.

var (
	// Request Errors
	ErrValidation   = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized access")

	// Ledger Errors
	ErrUnknownInvoice    = errors.New("unknown invoice")
	ErrInvalidTransition = errors.New("invalid invoice state transition")

	// Infrastructure Errors
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderDisabled    = errors.New("payment provider not enabled")
	ErrInvalidSignature    = errors.New("webhook signature invalid")

	// Code Generation Errors
	ErrEncoding = errors.New("payment code encoding failed")
)

// ValidationError carries a reason that is safe to show to the user.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError. errors.Is(err, ErrValidation) holds for the result.
func Invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
