// internal/payment/reconciler.payment.go

package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/store"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

// Reconciler maps normalized provider events onto ledger transitions.
// It is the bridge between the outside world (Webhook) and our Database.
type Reconciler struct {
	ledger   InvoiceLedger
	events   EventStore
	tx       store.TxManager
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	// sf collapses identical deliveries arriving at the same moment in this
	// process. Across processes the row lock and the unique event index do the job.
	sf singleflight.Group
}

func NewReconciler(ledger InvoiceLedger, events EventStore, tx store.TxManager, notifier Notifier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		ledger:   ledger,
		events:   events,
		tx:       tx,
		notifier: notifier,
		logger:   logger.With("component", "reconciler"),
		now:      time.Now,
	}
}

// Handle applies one provider event exactly once.
// A repeated (provider, external id) returns the outcome computed the first time.
// Unknown references fail with ErrUnknownInvoice and change nothing.
func (r *Reconciler) Handle(ctx context.Context, ev NormalizedEvent) (*Outcome, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("event_%s_%s", ev.Provider, ev.ExternalEventID)
	v, err, _ := r.sf.Do(key, func() (interface{}, error) {
		return r.handle(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*Outcome) // copy, callers sharing a flight must not share the pointer
	return &out, nil
}

func (r *Reconciler) handle(ctx context.Context, ev NormalizedEvent) (*Outcome, error) {
	log := r.logger.With("provider", ev.Provider, "event_id", ev.ExternalEventID, "reference", ev.ProviderReference)

	// 1. Idempotency fast path (no lock needed to read an immutable record)
	prior, err := r.events.GetEvent(ctx, ev.Provider, ev.ExternalEventID)
	if err != nil {
		return nil, fmt.Errorf("failed to check event history: %w", err)
	}
	if prior != nil {
		log.Info("duplicate event, replaying recorded outcome", "invoice_id", prior.InvoiceID, "status", prior.ResultingStatus)
		return replay(prior), nil
	}

	var (
		out     *Outcome
		changed *invoice.Result
	)
	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		out, changed = nil, nil

		// 2. Find and lock the invoice. Concurrent deliveries for the same invoice queue here.
		inv, err := r.ledger.FindByReference(ctx, ev.Provider, ev.ProviderReference)
		if err != nil {
			return err
		}

		// 3. Re-check under the lock: a twin delivery may have committed while we waited.
		prior, err := r.events.GetEvent(ctx, ev.Provider, ev.ExternalEventID)
		if err != nil {
			return fmt.Errorf("failed to check event history: %w", err)
		}
		if prior != nil {
			out = replay(prior)
			return nil
		}

		// 4. Apply exactly once
		status := inv.Status
		res, err := r.ledger.ApplyPayment(ctx, inv.InvoiceID, ev.Outcome, ev.PaymentReference)
		switch {
		case err == nil:
			status = res.Invoice.Status
		case errors.Is(err, domainErr.ErrInvalidTransition):
			// Not compatible with the current state. Record it and move on.
			log.Warn("event does not apply to invoice, recording as no-op",
				"invoice_id", inv.InvoiceID, "status", inv.Status, "outcome", ev.Outcome, "reason", err)
			res = nil
		default:
			return err
		}

		// 5. Record the event with the outcome we computed
		recorded := &PaymentEvent{
			EventID:         uuid.New(),
			Provider:        ev.Provider,
			ExternalEventID: ev.ExternalEventID,
			InvoiceID:       inv.InvoiceID,
			Outcome:         ev.Outcome,
			ResultingStatus: status,
			PaymentRef:      ev.PaymentReference,
			ReceivedAt:      r.now().UTC(),
		}
		inserted, err := r.events.InsertEvent(ctx, recorded)
		if err != nil {
			return err
		}
		if !inserted {
			// Same external id recorded against another row lock. Roll back
			// and let the retry take the duplicate path.
			return fmt.Errorf("%w: event %s recorded concurrently", domainErr.ErrStoreUnavailable, ev.ExternalEventID)
		}

		out = &Outcome{InvoiceID: inv.InvoiceID, Status: status, Applied: res != nil && res.Changed}
		// A backfilled payment reference changes the row, not the status.
		if out.Applied && res.Previous != res.Invoice.Status {
			changed = res
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domainErr.ErrUnknownInvoice) {
			log.Warn("event references no known invoice, acknowledging without changes")
		}
		return nil, err
	}

	// 6. Notify after commit. A failed notification never undoes a payment.
	if changed != nil {
		r.notify(ctx, changed)
	}
	return out, nil
}

func (r *Reconciler) notify(ctx context.Context, res *invoice.Result) {
	if r.notifier == nil {
		return
	}
	ev := EventFor(res.Invoice, res.Previous, contracts.EventInvoiceStatusChanged, r.now())
	if err := r.notifier.Notify(ctx, ev); err != nil {
		r.logger.Warn("invoice updated but notification failed", "invoice_id", res.Invoice.InvoiceID, "error", err)
	}
}

func replay(prior *PaymentEvent) *Outcome {
	return &Outcome{
		InvoiceID: prior.InvoiceID,
		Status:    prior.ResultingStatus,
		Duplicate: true,
	}
}

// EventFor snapshots an invoice into the shared event contract.
func EventFor(inv *invoice.Invoice, previous invoice.InvoiceStatus, eventType string, at time.Time) contracts.InvoiceEvent {
	return contracts.InvoiceEvent{
		Event:            eventType,
		InvoiceID:        inv.InvoiceID.String(),
		ShortID:          inv.ShortID(),
		PayerID:          inv.PayerID,
		CreatedBy:        inv.CreatedBy,
		ChannelID:        inv.ChannelID,
		Status:           string(inv.Status),
		PreviousStatus:   string(previous),
		Amount:           inv.DisplayAmount(),
		Description:      inv.Description,
		Provider:         string(inv.Provider),
		PaymentURL:       inv.PaymentURL,
		InvoiceChannelID: inv.InvoiceChannelID,
		CardMessageID:    inv.CardMessageID,
		OccurredAt:       at.UTC(),
	}
}
