package chat

import (
	"context"
	"errors"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
)

// MapError translates domain errors into replies a user can act on.
// Internals never leak: anything unrecognised becomes a generic failure.
func MapError(err error) Reply {
	var verr *domainErr.ValidationError
	switch {
	case errors.As(err, &verr):
		return errorReply("Invalid Request", verr.Reason)
	case errors.Is(err, domainErr.ErrUnauthorized):
		return errorReply("Access Denied", "You don't have permission to do that.")
	case errors.Is(err, domainErr.ErrUnknownInvoice):
		return errorReply("Not Found", "No invoice matches that id.")
	case errors.Is(err, domainErr.ErrProviderDisabled):
		return errorReply("Provider Unavailable", "That payment provider is not enabled.")
	case errors.Is(err, domainErr.ErrInvalidTransition):
		return warningReply("Not Possible", "The invoice is not in a state that allows this.")
	case errors.Is(err, domainErr.ErrStoreUnavailable),
		errors.Is(err, domainErr.ErrProviderUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return errorReply("Temporarily Unavailable", "Something is busy on our side. Please try again in a moment.")
	}
	return errorReply("Something Went Wrong", "An unexpected error occurred.")
}
