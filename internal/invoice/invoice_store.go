// internal/invoice/invoice_store.go

package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InvoiceStore handles persistence operations for invoices.
// Placed in the invoice package to avoid import cycles between store and invoice.
// Lookups return domain ErrUnknownInvoice when nothing matches.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error)

	// GetInvoiceForUpdate locks the row until the surrounding transaction ends.
	GetInvoiceForUpdate(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error)

	// FindByProviderRefForUpdate matches either the checkout reference or the
	// payment reference of the given provider and locks the row.
	FindByProviderRefForUpdate(ctx context.Context, provider Provider, ref string) (*Invoice, error)

	// FindByShortID returns every invoice whose id starts with shortID.
	FindByShortID(ctx context.Context, shortID string) ([]*Invoice, error)

	ListByPayer(ctx context.Context, payerID string, limit int) ([]*Invoice, error)

	// ListPendingSince returns PENDING invoices whose attempt started at or
	// before cutoff, ordered by (pending_since, invoice_id). A non-nil after
	// resumes strictly past that position.
	ListPendingSince(ctx context.Context, cutoff time.Time, after *PendingCursor, limit int) ([]*Invoice, error)

	// UpdateInvoice is a Compare-and-Swap: the row is written only while its
	// stored status still equals from. Zero affected rows means ErrInvalidTransition.
	UpdateInvoice(ctx context.Context, inv *Invoice, from InvoiceStatus) error
}
