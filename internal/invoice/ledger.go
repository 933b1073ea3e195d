// internal/invoice/ledger.go

package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/store"
)

// DefaultPendingTimeout is how long a payment attempt stays open before the sweep expires it.
const DefaultPendingTimeout = 24 * time.Hour

// Ledger is the single source of truth for invoice state.
// Every mutation runs in one transaction with the invoice row locked, so two
// concurrent callers can never both observe PENDING for the same invoice.
type Ledger struct {
	store          InvoiceStore
	tx             store.TxManager
	pendingTimeout time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

func NewLedger(invoiceStore InvoiceStore, tx store.TxManager, pendingTimeout time.Duration, logger *slog.Logger) *Ledger {
	if pendingTimeout <= 0 {
		pendingTimeout = DefaultPendingTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:          invoiceStore,
		tx:             tx,
		pendingTimeout: pendingTimeout,
		now:            time.Now,
		logger:         logger.With("component", "ledger"),
	}
}

// WithClock swaps the time source. Used by tests and the sweep command.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) PendingTimeout() time.Duration {
	return l.pendingTimeout
}

type CreateParams struct {
	PayerID     string
	CreatedBy   string
	ChannelID   string
	AmountMinor int64
	Currency    string
	Description string
}

// Create validates the request and stores a new DRAFT invoice.
func (l *Ledger) Create(ctx context.Context, p CreateParams) (*Invoice, error) {
	// 1. Input Validation
	if strings.TrimSpace(p.PayerID) == "" {
		return nil, domainErr.Invalid("payer is required")
	}
	if p.AmountMinor <= 0 {
		return nil, domainErr.Invalid("amount must be greater than zero")
	}
	if p.AmountMinor > MaxAmountMinor {
		return nil, domainErr.Invalid("amount is too large")
	}
	currency, err := NormalizeCurrency(p.Currency)
	if err != nil {
		return nil, err
	}

	// 2. Build the entity
	now := l.now().UTC()
	inv := &Invoice{
		InvoiceID:   uuid.New(),
		PayerID:     p.PayerID,
		CreatedBy:   p.CreatedBy,
		ChannelID:   p.ChannelID,
		AmountMinor: p.AmountMinor,
		Currency:    currency,
		Description: strings.TrimSpace(p.Description),
		Status:      InvoiceDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// 3. Persist
	err = l.tx.RunInTx(ctx, func(ctx context.Context) error {
		return l.store.CreateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}
	l.logger.Info("invoice created", "invoice_id", inv.InvoiceID, "payer", inv.PayerID, "amount", inv.DisplayAmount())
	return inv.Clone(), nil
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return l.store.GetInvoiceByID(ctx, id)
}

// Resolve accepts a full invoice id or the 8 character short id shown in chat.
func (l *Ledger) Resolve(ctx context.Context, ref string) (*Invoice, error) {
	ref = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ref)), "#")
	if id, err := uuid.Parse(ref); err == nil {
		return l.store.GetInvoiceByID(ctx, id)
	}
	if len(ref) != 8 {
		return nil, domainErr.Invalid("invoice id must be a full id or the 8 character short id")
	}
	matches, err := l.store.FindByShortID(ctx, ref)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("invoice %s: %w", ref, domainErr.ErrUnknownInvoice)
	case 1:
		return matches[0], nil
	}
	return nil, domainErr.Invalid("short id %s is ambiguous, use the full invoice id", ref)
}

func (l *Ledger) ListByPayer(ctx context.Context, payerID string, limit int) ([]*Invoice, error) {
	if limit <= 0 || limit > 25 {
		limit = 25
	}
	return l.store.ListByPayer(ctx, payerID, limit)
}

// FindByReference locks the invoice owning a provider reference.
// Meant to be called inside a transaction.
func (l *Ledger) FindByReference(ctx context.Context, provider Provider, ref string) (*Invoice, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty provider reference: %w", domainErr.ErrUnknownInvoice)
	}
	return l.store.FindByProviderRefForUpdate(ctx, provider, ref)
}

// ListExpirable returns one page of PENDING invoices whose payment window
// has closed. Pass the cursor of the previous page's last invoice to continue.
func (l *Ledger) ListExpirable(ctx context.Context, after *PendingCursor, limit int) ([]*Invoice, error) {
	cutoff := l.now().UTC().Add(-l.pendingTimeout)
	return l.store.ListPendingSince(ctx, cutoff, after, limit)
}

// AttachChannel records the private channel and card message opened for the
// invoice. Empty values detach them once the channel is gone.
func (l *Ledger) AttachChannel(ctx context.Context, id uuid.UUID, channelID, messageID string) (*Result, error) {
	return l.transition(ctx, id, func(inv *Invoice, now time.Time) (bool, error) {
		if inv.InvoiceChannelID == channelID && inv.CardMessageID == messageID {
			return false, nil
		}
		inv.InvoiceChannelID = channelID
		inv.CardMessageID = messageID
		return true, nil
	})
}

// MarkPending moves DRAFT -> PENDING and records the checkout the payer will use.
func (l *Ledger) MarkPending(ctx context.Context, id uuid.UUID, co Checkout) (*Result, error) {
	return l.transition(ctx, id, func(inv *Invoice, now time.Time) (bool, error) {
		return markPending(inv, co, now)
	})
}

// ApplyPayment folds a provider outcome into the invoice.
// Re-applying an outcome that already took effect is a no-op returning the
// current state, never an error.
func (l *Ledger) ApplyPayment(ctx context.Context, id uuid.UUID, outcome PaymentOutcome, paymentRef string) (*Result, error) {
	res, err := l.transition(ctx, id, func(inv *Invoice, now time.Time) (bool, error) {
		late := inv.Status == InvoiceExpired && outcome == OutcomeSucceeded
		changed, err := applyOutcome(inv, outcome, paymentRef, l.pendingTimeout, now)
		if late && changed {
			l.logger.Warn("payment succeeded after the invoice expired, accepting it", "invoice_id", inv.InvoiceID)
		}
		return changed, err
	})
	if err == nil && res.Changed {
		l.logger.Info("payment applied", "invoice_id", id, "outcome", outcome, "from", res.Previous, "to", res.Invoice.Status)
	}
	return res, err
}

// Expire moves a PENDING invoice whose window has closed to EXPIRED.
// PAID and CANCELLED invoices are never touched.
func (l *Ledger) Expire(ctx context.Context, id uuid.UUID) (*Result, error) {
	return l.transition(ctx, id, func(inv *Invoice, now time.Time) (bool, error) {
		return expire(inv, l.pendingTimeout, now)
	})
}

// Cancel moves DRAFT or PENDING to CANCELLED. Cancelling twice is a no-op.
func (l *Ledger) Cancel(ctx context.Context, id uuid.UUID) (*Result, error) {
	return l.transition(ctx, id, func(inv *Invoice, now time.Time) (bool, error) {
		return cancel(inv)
	})
}

// transition is the shared read-lock-mutate-write cycle.
func (l *Ledger) transition(ctx context.Context, id uuid.UUID, mutate func(inv *Invoice, now time.Time) (bool, error)) (*Result, error) {
	var res *Result
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		res = nil

		// 1. Fetch and lock. Concurrent callers queue up here.
		inv, err := l.store.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}

		// 2. State machine (in memory)
		previous := inv.Status
		now := l.now().UTC()
		changed, err := mutate(inv, now)
		res = &Result{Invoice: inv, Previous: previous, Changed: changed}
		if err != nil || !changed {
			return err
		}

		// 3. Compare-and-Swap write
		inv.UpdatedAt = now
		if err := l.store.UpdateInvoice(ctx, inv, previous); err != nil {
			res = nil // the in-memory copy no longer matches the row
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domainErr.ErrInvalidTransition) && res != nil {
			// Callers treat this as a no-op; hand them the state they ran into.
			return res, err
		}
		return nil, err
	}
	return res, nil
}
