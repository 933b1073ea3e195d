// internal/invoice/invoice_models.go

package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoicePending   InvoiceStatus = "PENDING"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceExpired   InvoiceStatus = "EXPIRED"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
	InvoiceRefunded  InvoiceStatus = "REFUNDED"
)

// IsTerminal reports whether no further payment can settle the invoice.
func (s InvoiceStatus) IsTerminal() bool {
	switch s {
	case InvoicePaid, InvoiceExpired, InvoiceCancelled, InvoiceRefunded:
		return true
	}
	return false
}

// Provider names a payment provider. The value is what we persist.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
)

func ParseProvider(raw string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(raw))); p {
	case ProviderStripe, ProviderPayPal:
		return p, nil
	}
	return "", fmt.Errorf("unknown payment provider %q", raw)
}

func (p Provider) DisplayName() string {
	switch p {
	case ProviderStripe:
		return "Stripe"
	case ProviderPayPal:
		return "PayPal"
	}
	return string(p)
}

// PaymentOutcome is what a provider reported for a payment attempt.
type PaymentOutcome string

const (
	OutcomeSucceeded PaymentOutcome = "SUCCEEDED"
	OutcomeFailed    PaymentOutcome = "FAILED"
	OutcomeRefunded  PaymentOutcome = "REFUNDED"
	// OutcomeExpired means the provider closed the checkout unpaid at its deadline.
	OutcomeExpired PaymentOutcome = "EXPIRED"
)

type Invoice struct {
	InvoiceID   uuid.UUID
	PayerID     string // chat user who owes the money
	CreatedBy   string // chat user who issued the invoice
	ChannelID   string // where the invoice was issued
	AmountMinor int64  // amount in the currency's minor units (cents for USD)
	Currency    string // e.g., "USD"
	Description string
	Status      InvoiceStatus

	// Payment attempt. Empty until the payer starts a checkout.
	Provider    Provider
	ProviderRef string // checkout session id / order id
	PaymentRef  string // payment intent id / capture id, once the provider reports it
	PaymentURL  string

	// Private channel opened for this invoice and the card posted in it.
	InvoiceChannelID string
	CardMessageID    string

	CreatedAt    time.Time
	UpdatedAt    time.Time
	PendingSince *time.Time
	PaidAt       *time.Time
}

// ShortID is the 8 character handle users type in chat.
func (inv *Invoice) ShortID() string {
	return ShortID(inv.InvoiceID)
}

func ShortID(id uuid.UUID) string {
	return id.String()[:8]
}

func (inv *Invoice) DisplayAmount() string {
	return FormatAmount(inv.AmountMinor, inv.Currency)
}

// Clone returns a deep copy so callers can't alias stored state.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	if inv.PendingSince != nil {
		t := *inv.PendingSince
		c.PendingSince = &t
	}
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// Checkout is a provider payment session a payer can complete.
type Checkout struct {
	Provider  Provider
	Reference string
	URL       string
	ExpiresAt time.Time
}

// PendingCursor is the position of the last invoice a scan of stale
// PENDING invoices returned. Scans resume strictly after it.
type PendingCursor struct {
	PendingSince time.Time
	InvoiceID    uuid.UUID
}

// After reports whether inv sorts after the cursor (pending_since, then id).
func (c *PendingCursor) After(inv *Invoice) bool {
	if c == nil {
		return true
	}
	if inv.PendingSince == nil {
		return false
	}
	if !inv.PendingSince.Equal(c.PendingSince) {
		return inv.PendingSince.After(c.PendingSince)
	}
	return inv.InvoiceID.String() > c.InvoiceID.String()
}

// CursorAt marks inv as the last one seen.
func CursorAt(inv *Invoice) *PendingCursor {
	if inv == nil || inv.PendingSince == nil {
		return nil
	}
	return &PendingCursor{PendingSince: *inv.PendingSince, InvoiceID: inv.InvoiceID}
}

// Result describes the effect of a ledger mutation.
type Result struct {
	Invoice  *Invoice
	Previous InvoiceStatus
	Changed  bool
}
