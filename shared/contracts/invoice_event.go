package contracts

import "time"

// Event types carried on the invoice stream.
const (
	EventInvoiceCreated       = "invoice.created"
	EventInvoiceStatusChanged = "invoice.status_changed"
	EventInvoiceReminder      = "invoice.reminder" // resend to the payer, nothing changed
)

// InvoiceEvent is the single shape every notifier, queue and topic agrees on.
// It is a snapshot; consumers never reach back into the ledger.
type InvoiceEvent struct {
	Event          string `json:"event"`
	InvoiceID      string `json:"invoice_id"`
	ShortID        string `json:"short_id"`
	PayerID        string `json:"payer_id"`
	CreatedBy      string `json:"created_by"`
	ChannelID      string `json:"channel_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Amount         string `json:"amount"` // display form, e.g. "12.50 USD"
	Description    string `json:"description,omitempty"`
	Provider       string `json:"provider,omitempty"`
	PaymentURL     string `json:"payment_url,omitempty"`

	// The private invoice channel and the card posted in it, when there is one.
	InvoiceChannelID string `json:"invoice_channel_id,omitempty"`
	CardMessageID    string `json:"card_message_id,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
