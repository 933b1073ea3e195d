// internal/payment/Payment_Service.go
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

// PaymentService starts, inspects and abandons provider checkouts for invoices.
type PaymentService struct {
	ledger   CheckoutLedger
	gateways map[invoice.Provider]Gateway
	logger   *slog.Logger

	// If a payer mashes the pay button, only one checkout gets created.
	// The other clicks wait and receive the same result.
	sf singleflight.Group
}

func NewPaymentService(ledger CheckoutLedger, logger *slog.Logger, gateways ...Gateway) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	ps := &PaymentService{
		ledger:   ledger,
		gateways: make(map[invoice.Provider]Gateway, len(gateways)),
		logger:   logger.With("component", "payment_service"),
	}
	for _, gw := range gateways {
		ps.gateways[gw.Provider()] = gw
	}
	return ps
}

// Providers lists the enabled providers in a stable order.
func (ps *PaymentService) Providers() []invoice.Provider {
	out := make([]invoice.Provider, 0, len(ps.gateways))
	for p := range ps.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StartPayment opens a checkout with the provider and moves the invoice to PENDING.
// Asking again while the same provider's checkout is open returns that checkout.
// Clicks are collapsed per invoice and provider; racing providers are settled
// by the ledger, and the loser is told which payment is in progress.
func (ps *PaymentService) StartPayment(ctx context.Context, invoiceID uuid.UUID, provider invoice.Provider) (*invoice.Invoice, error) {
	key := fmt.Sprintf("start_payment_%s_%s", invoiceID, provider)
	v, err, _ := ps.sf.Do(key, func() (interface{}, error) {
		return ps.startPayment(ctx, invoiceID, provider)
	})
	inv, _ := v.(*invoice.Invoice)
	if inv == nil {
		return nil, err
	}
	// On ErrInvalidTransition inv is the state the caller ran into.
	return inv.Clone(), err
}

func (ps *PaymentService) startPayment(ctx context.Context, invoiceID uuid.UUID, provider invoice.Provider) (*invoice.Invoice, error) {
	gw, ok := ps.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainErr.ErrProviderDisabled, provider)
	}

	// 1. Fetch the invoice
	inv, err := ps.ledger.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	// 2. State Validation (The GateKeeper)
	// We do this check in memory to fail fast, but the ledger does the final check under a row lock.
	switch inv.Status {
	case invoice.InvoiceDraft:
	case invoice.InvoicePending:
		if inv.Provider == provider && inv.PaymentURL != "" {
			return inv, nil // Idempotency: reuse the open checkout
		}
		return nil, domainErr.Invalid("a %s payment is already in progress for this invoice", inv.Provider.DisplayName())
	default:
		return inv, fmt.Errorf("%w: invoice is %s", domainErr.ErrInvalidTransition, inv.Status)
	}

	// 3. Create the checkout (External Phase) with a hard limit.
	gwCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	co, err := gw.CreateCheckout(gwCtx, inv)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s checkout: %w", provider, err)
	}

	// 4. Record it (Write Phase)
	res, err := ps.ledger.MarkPending(ctx, invoiceID, *co)
	if err != nil {
		// Lost a race (cancelled meanwhile, or another attempt won). Don't leave
		// a payable link behind for an invoice that can't take it.
		ps.logger.Warn("checkout created but invoice could not move to PENDING, abandoning checkout",
			"invoice_id", invoiceID, "reference", co.Reference, "error", err)
		if cerr := gw.Cancel(context.WithoutCancel(ctx), co.Reference); cerr != nil {
			ps.logger.Error("failed to abandon checkout", "reference", co.Reference, "error", cerr)
		}
		if res != nil {
			if res.Invoice.Status == invoice.InvoicePending && res.Invoice.Provider != provider {
				return nil, domainErr.Invalid("a %s payment is already in progress for this invoice", res.Invoice.Provider.DisplayName())
			}
			return res.Invoice, err
		}
		return nil, err
	}
	ps.logger.Info("payment started", "invoice_id", invoiceID, "provider", provider, "reference", co.Reference)
	return res.Invoice, nil
}

// Lookup asks the provider what really happened to the invoice's checkout.
func (ps *PaymentService) Lookup(ctx context.Context, inv *invoice.Invoice) (CheckoutState, error) {
	gw, ok := ps.gateways[inv.Provider]
	if !ok {
		return CheckoutState{}, fmt.Errorf("%w: %s", domainErr.ErrProviderDisabled, inv.Provider)
	}
	if inv.ProviderRef == "" {
		return CheckoutState{Status: CheckoutClosed}, nil
	}
	return gw.Lookup(ctx, inv.ProviderRef)
}

// CancelCheckout closes the provider side of an abandoned attempt. Best effort.
func (ps *PaymentService) CancelCheckout(ctx context.Context, inv *invoice.Invoice) {
	gw, ok := ps.gateways[inv.Provider]
	if !ok || inv.ProviderRef == "" {
		return
	}
	if err := gw.Cancel(ctx, inv.ProviderRef); err != nil {
		ps.logger.Warn("failed to cancel checkout", "invoice_id", inv.InvoiceID, "reference", inv.ProviderRef, "error", err)
	}
}
