//internal/worker/expiry.sweeper.go

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

/*
A payer opens the checkout and then:
closes the tab,
pays but the webhook never arrives,
or the provider gives up on the session.

The ledger still says PENDING. The sweeper pages through PENDING invoices
whose payment window has closed and asks the provider what really happened:
PAID     -> the payment is fed through the reconciler like any webhook
anything else -> the invoice is expired and the checkout closed

A lookup that fails for a transient reason leaves the invoice for the next
pass; the cursor moves past it so it never holds back newer invoices.
*/

type ExpiryLedger interface {
	ListExpirable(ctx context.Context, after *invoice.PendingCursor, limit int) ([]*invoice.Invoice, error)
	Expire(ctx context.Context, id uuid.UUID) (*invoice.Result, error)
}

// CheckoutChecker asks providers about checkouts; PaymentService implements it.
type CheckoutChecker interface {
	Lookup(ctx context.Context, inv *invoice.Invoice) (payment.CheckoutState, error)
	CancelCheckout(ctx context.Context, inv *invoice.Invoice)
}

type EventHandler interface {
	Handle(ctx context.Context, ev payment.NormalizedEvent) (*payment.Outcome, error)
}

type Notifier interface {
	Notify(ctx context.Context, ev contracts.InvoiceEvent) error
}

// SweepSummary counts what one pass did.
type SweepSummary struct {
	Scanned int
	Expired int
	Paid    int
	Skipped int
}

type ExpirySweeper struct {
	ledger   ExpiryLedger
	checkout CheckoutChecker
	events   EventHandler
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	//setting
	Interval    time.Duration // how often a pass runs
	BatchSize   int           // how many invoices one pass looks at
	WorkerCount int           // how many invoices are checked in parallel
}

func NewExpirySweeper(ledger ExpiryLedger, checkout CheckoutChecker, events EventHandler, notifier Notifier, logger *slog.Logger) *ExpirySweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweeper{
		ledger:      ledger,
		checkout:    checkout,
		events:      events,
		notifier:    notifier,
		logger:      logger.With("component", "expiry_sweeper"),
		now:         time.Now,
		Interval:    time.Minute,
		BatchSize:   50,
		WorkerCount: 5,
	}
}

// Start runs a pass every Interval until ctx is cancelled. Blocking call.
func (s *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	s.logger.Info("[Sweeper] worker started", "interval", s.Interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("[Sweeper] context cancelled, stopping")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("[Sweeper] pass failed", "error", err)
			}
		}
	}
}

// RunOnce pages through every stale invoice once, BatchSize at a time.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (SweepSummary, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = 50
	}

	var (
		total  SweepSummary
		cursor *invoice.PendingCursor
	)
	for {
		invoices, err := s.ledger.ListExpirable(ctx, cursor, batch)
		if err != nil {
			return total, fmt.Errorf("list expirable invoices: %w", err)
		}
		if len(invoices) == 0 {
			break
		}
		total.add(s.sweepBatch(ctx, invoices))
		if len(invoices) < batch {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
		cursor = invoice.CursorAt(invoices[len(invoices)-1])
	}

	if total.Scanned == 0 {
		s.logger.Debug("[Sweeper] nothing to sweep")
		return total, nil
	}
	s.logger.Info("[Sweeper] pass completed", "scanned", total.Scanned, "expired", total.Expired, "paid", total.Paid, "skipped", total.Skipped)
	return total, nil
}

func (s *SweepSummary) add(o SweepSummary) {
	s.Scanned += o.Scanned
	s.Expired += o.Expired
	s.Paid += o.Paid
	s.Skipped += o.Skipped
}

// sweepBatch runs one page through the worker pool.
func (s *ExpirySweeper) sweepBatch(ctx context.Context, invoices []*invoice.Invoice) SweepSummary {
	workers := s.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	var expired, paid, skipped atomic.Int64
	jobs := make(chan *invoice.Invoice, len(invoices))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for inv := range jobs {
				switch result, err := s.sweep(ctx, inv); {
				case err != nil:
					skipped.Add(1)
					s.logger.Warn("[Sweeper] invoice skipped", "worker", id, "invoice_id", inv.InvoiceID, "error", err)
				case result == sweptPaid:
					paid.Add(1)
				case result == sweptExpired:
					expired.Add(1)
				default:
					skipped.Add(1)
				}
			}
		}(w)
	}
	for _, inv := range invoices {
		jobs <- inv
	}
	close(jobs)
	wg.Wait()

	return SweepSummary{
		Scanned: len(invoices),
		Expired: int(expired.Load()),
		Paid:    int(paid.Load()),
		Skipped: int(skipped.Load()),
	}
}

type sweepResult int

const (
	sweptNothing sweepResult = iota
	sweptPaid
	sweptExpired
)

// sweep is the core logic: ledger(PENDING) vs provider(???)
func (s *ExpirySweeper) sweep(ctx context.Context, inv *invoice.Invoice) (sweepResult, error) {
	// Without an answer from the provider we cannot tell an abandoned
	// checkout from a lost webhook, so the invoice waits for the next pass.
	// Unless no answer will ever come: then the window is all we have.
	state, err := s.checkout.Lookup(ctx, inv)
	if err != nil {
		if !payment.IsPermanentLookupError(err) {
			return sweptNothing, fmt.Errorf("lookup checkout: %w", err)
		}
		s.logger.Warn("[Sweeper] checkout can no longer be looked up, expiring", "invoice_id", inv.InvoiceID, "provider", inv.Provider, "error", err)
		state = payment.CheckoutState{Status: payment.CheckoutClosed}
	}

	if state.Status == payment.CheckoutPaid {
		out, err := s.events.Handle(ctx, payment.NormalizedEvent{
			Provider:          inv.Provider,
			ExternalEventID:   "sweep:" + inv.ProviderRef,
			ProviderReference: inv.ProviderRef,
			PaymentReference:  state.PaymentReference,
			Outcome:           invoice.OutcomeSucceeded,
			OccurredAt:        s.now().UTC(),
		})
		if err != nil {
			return sweptNothing, fmt.Errorf("apply missed payment: %w", err)
		}
		s.logger.Info("[Sweeper] recovered missed payment", "invoice_id", inv.InvoiceID, "status", out.Status, "applied", out.Applied)
		return sweptPaid, nil
	}

	res, err := s.ledger.Expire(ctx, inv.InvoiceID)
	if errors.Is(err, domainErr.ErrInvalidTransition) {
		// A webhook or a cancel got there first.
		return sweptNothing, nil
	}
	if err != nil {
		return sweptNothing, fmt.Errorf("expire: %w", err)
	}
	if state.Status == payment.CheckoutOpen {
		s.checkout.CancelCheckout(ctx, inv)
	}
	if res.Changed {
		ev := payment.EventFor(res.Invoice, res.Previous, contracts.EventInvoiceStatusChanged, s.now())
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.logger.Warn("[Sweeper] expiry notification failed", "invoice_id", inv.InvoiceID, "error", err)
		}
	}
	return sweptExpired, nil
}
