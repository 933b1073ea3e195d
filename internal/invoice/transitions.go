// internal/invoice/transitions.go

package invoice

import (
	"fmt"
	"time"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
)

// The functions below are the state machine. They mutate inv in memory and
// report whether anything changed; persistence is the Ledger's job.

func markPending(inv *Invoice, co Checkout, now time.Time) (bool, error) {
	if inv.Status != InvoiceDraft {
		return false, fmt.Errorf("%w: cannot start payment, current status is %s", domainErr.ErrInvalidTransition, inv.Status)
	}
	if co.Provider == "" || co.Reference == "" {
		return false, fmt.Errorf("integrity violation: checkout without provider reference")
	}
	inv.Status = InvoicePending
	inv.Provider = co.Provider
	inv.ProviderRef = co.Reference
	inv.PaymentRef = ""
	inv.PaymentURL = co.URL
	inv.PendingSince = &now
	return true, nil
}

// expiryGrace covers the skew between a provider closing its checkout at the
// deadline and the ledger's own view of that deadline.
const expiryGrace = 5 * time.Minute

func applyOutcome(inv *Invoice, outcome PaymentOutcome, paymentRef string, timeout time.Duration, now time.Time) (bool, error) {
	switch outcome {
	case OutcomeSucceeded:
		switch inv.Status {
		case InvoicePaid:
			// Idempotency: It's already done. A payment recovered by the sweep
			// may only learn its capture id from the webhook that follows.
			if inv.PaymentRef == "" && paymentRef != "" {
				inv.PaymentRef = paymentRef
				return true, nil
			}
			return false, nil
		case InvoiceRefunded:
			return false, nil
		case InvoicePending, InvoiceExpired:
			// Expired is accepted too: the provider already moved the money.
			inv.Status = InvoicePaid
			inv.PaidAt = &now
			if paymentRef != "" {
				inv.PaymentRef = paymentRef
			}
			return true, nil
		}

	case OutcomeFailed:
		switch inv.Status {
		case InvoicePaid, InvoiceRefunded:
			return false, nil // Never overwrite a Success with a Failure
		case InvoiceDraft:
			return false, nil
		case InvoicePending:
			backToDraft(inv)
			return true, nil
		}

	case OutcomeExpired:
		switch inv.Status {
		case InvoiceDraft, InvoicePaid, InvoiceExpired, InvoiceRefunded:
			return false, nil
		case InvoicePending:
			deadline := timeout - expiryGrace
			if deadline < 0 {
				deadline = 0
			}
			if inv.PendingSince == nil || !now.Before(inv.PendingSince.Add(deadline)) {
				inv.Status = InvoiceExpired
				inv.PaymentURL = ""
				return true, nil
			}
			// The provider gave up before our window closed.
			backToDraft(inv)
			return true, nil
		}

	case OutcomeRefunded:
		switch inv.Status {
		case InvoiceRefunded:
			return false, nil
		case InvoicePaid:
			inv.Status = InvoiceRefunded
			return true, nil
		}

	default:
		return false, domainErr.Invalid("unknown payment outcome %q", outcome)
	}

	return false, fmt.Errorf("%w: %s outcome on %s invoice", domainErr.ErrInvalidTransition, outcome, inv.Status)
}

// backToDraft lets the payer start a new attempt. The provider reference
// stays until the next checkout replaces it, so late events for the failed
// attempt still find the invoice.
func backToDraft(inv *Invoice) {
	inv.Status = InvoiceDraft
	inv.PaymentURL = ""
	inv.PendingSince = nil
}

func expire(inv *Invoice, timeout time.Duration, now time.Time) (bool, error) {
	if inv.Status != InvoicePending {
		return false, fmt.Errorf("%w: only PENDING invoices expire, current status is %s", domainErr.ErrInvalidTransition, inv.Status)
	}
	if inv.PendingSince != nil && now.Before(inv.PendingSince.Add(timeout)) {
		return false, fmt.Errorf("%w: payment window still open until %s", domainErr.ErrInvalidTransition, inv.PendingSince.Add(timeout).Format(time.RFC3339))
	}
	inv.Status = InvoiceExpired
	inv.PaymentURL = ""
	return true, nil
}

func cancel(inv *Invoice) (bool, error) {
	switch inv.Status {
	case InvoiceCancelled:
		return false, nil
	case InvoiceDraft, InvoicePending:
		inv.Status = InvoiceCancelled
		inv.PaymentURL = ""
		return true, nil
	}
	return false, fmt.Errorf("%w: cannot cancel a %s invoice", domainErr.ErrInvalidTransition, inv.Status)
}
