// internal/payment/models.payment.go
package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

// NormalizedEvent is the "Universal Language" of our payment system.
// It doesn't matter if it came from Stripe or PayPal,
// it always looks like this to the Reconciler.
type NormalizedEvent struct {
	Provider          invoice.Provider
	ExternalEventID   string                 // e.g., "evt_1N..." or "WH-2WR..." (idempotency key)
	ProviderReference string                 // e.g., "cs_test_..." checkout session, PayPal order or capture id
	PaymentReference  string                 // e.g., "pi_3M..." once known
	Outcome           invoice.PaymentOutcome // SUCCEEDED, FAILED, REFUNDED, EXPIRED
	ErrorCode         string                 // e.g., "card_declined"
	ErrorMessage      string
	OccurredAt        time.Time
}

func (e NormalizedEvent) Validate() error {
	if e.Provider == "" {
		return domainErr.Invalid("event without provider")
	}
	if strings.TrimSpace(e.ExternalEventID) == "" {
		return domainErr.Invalid("event without external id")
	}
	if strings.TrimSpace(e.ProviderReference) == "" {
		return domainErr.Invalid("event %s has no provider reference", e.ExternalEventID)
	}
	switch e.Outcome {
	case invoice.OutcomeSucceeded, invoice.OutcomeFailed, invoice.OutcomeRefunded, invoice.OutcomeExpired:
		return nil
	}
	return domainErr.Invalid("event %s has unknown outcome %q", e.ExternalEventID, e.Outcome)
}

// PaymentEvent is the immutable audit record of one provider notification.
// (Provider, ExternalEventID) is unique; ResultingStatus is the outcome we
// computed the first time, replayed for duplicates.
type PaymentEvent struct {
	EventID         uuid.UUID
	Provider        invoice.Provider
	ExternalEventID string
	InvoiceID       uuid.UUID
	Outcome         invoice.PaymentOutcome
	ResultingStatus invoice.InvoiceStatus
	PaymentRef      string
	ReceivedAt      time.Time
}

// Outcome is what Reconciler.Handle reports back to the webhook layer.
type Outcome struct {
	InvoiceID uuid.UUID
	Status    invoice.InvoiceStatus
	Applied   bool // the invoice changed state because of this event
	Duplicate bool // the event had been recorded before
}

// CheckoutStatus is the provider's view of a checkout we created.
type CheckoutStatus string

const (
	CheckoutOpen   CheckoutStatus = "OPEN"
	CheckoutPaid   CheckoutStatus = "PAID"
	CheckoutClosed CheckoutStatus = "CLOSED" // expired, voided or abandoned
)

type CheckoutState struct {
	Status           CheckoutStatus
	PaymentReference string
}
