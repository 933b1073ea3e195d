// internal/payment/payment.interfaces.go
package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

// EventStore persists PaymentEvents.
type EventStore interface {
	// InsertEvent is idempotent. If (provider, external id) exists it returns
	// false and does not create a duplicate.
	InsertEvent(ctx context.Context, ev *PaymentEvent) (bool, error)
	// GetEvent returns nil, nil when the event was never recorded.
	GetEvent(ctx context.Context, provider invoice.Provider, externalID string) (*PaymentEvent, error)
	ListEventsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*PaymentEvent, error)
}

// InvoiceLedger is the slice of the ledger the Reconciler drives.
type InvoiceLedger interface {
	FindByReference(ctx context.Context, provider invoice.Provider, ref string) (*invoice.Invoice, error)
	ApplyPayment(ctx context.Context, id uuid.UUID, outcome invoice.PaymentOutcome, paymentRef string) (*invoice.Result, error)
}

// CheckoutLedger is the slice of the ledger the PaymentService drives.
type CheckoutLedger interface {
	Get(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error)
	MarkPending(ctx context.Context, id uuid.UUID, co invoice.Checkout) (*invoice.Result, error)
}

// Gateway creates and inspects provider checkouts.
type Gateway interface {
	Provider() invoice.Provider
	CreateCheckout(ctx context.Context, inv *invoice.Invoice) (*invoice.Checkout, error)
	Lookup(ctx context.Context, reference string) (CheckoutState, error)
	Cancel(ctx context.Context, reference string) error
}

// Notifier tells the chat surface (or a queue in front of it) about state changes.
type Notifier interface {
	Notify(ctx context.Context, ev contracts.InvoiceEvent) error
}
