// internal/payment/stripe_gateway.go

package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

// Stripe only accepts checkout sessions that expire between 30 minutes and 24 hours out.
const (
	stripeMinSessionTTL = 30 * time.Minute
	stripeMaxSessionTTL = 24 * time.Hour
)

type StripeOptions struct {
	SuccessURL string
	CancelURL  string
	// SessionTTL keeps the hosted page alive as long as the invoice stays PENDING.
	SessionTTL time.Duration
}

// StripeGateway implements Gateway on hosted Checkout Sessions.
type StripeGateway struct {
	client *client.API // initialized with the secret key, no global state
	opts   StripeOptions
	now    func() time.Time
}

func NewStripeGateway(apiKey string, opts StripeOptions) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeGateway{client: sc, opts: opts, now: time.Now}
}

func (sg *StripeGateway) Provider() invoice.Provider {
	return invoice.ProviderStripe
}

// CreateCheckout opens a one-line payment-mode Checkout Session for the invoice.
func (sg *StripeGateway) CreateCheckout(ctx context.Context, inv *invoice.Invoice) (*invoice.Checkout, error) {
	// 1. Input Validation
	if inv.AmountMinor <= 0 {
		return nil, domainErr.Invalid("amount must be greater than zero")
	}

	ttl := sg.opts.SessionTTL
	if ttl < stripeMinSessionTTL {
		ttl = stripeMinSessionTTL
	}
	if ttl > stripeMaxSessionTTL {
		ttl = stripeMaxSessionTTL
	}
	expiresAt := sg.now().Add(ttl)

	name := inv.Description
	if name == "" {
		name = "Invoice #" + inv.ShortID()
	}

	// 2. Map domain request -> stripe parameters
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(inv.InvoiceID.String()),
		SuccessURL:        stripe.String(sg.opts.SuccessURL),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(inv.Currency)),
				UnitAmount: stripe.Int64(inv.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		// Refund events arrive on the charge, which only knows its payment intent.
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Description: stripe.String(fmt.Sprintf("Invoice #%s", inv.ShortID())),
			Metadata:    map[string]string{"invoice_id": inv.InvoiceID.String()},
		},
	}
	if sg.opts.CancelURL != "" {
		params.CancelURL = stripe.String(sg.opts.CancelURL)
	}
	params.AddMetadata("invoice_id", inv.InvoiceID.String())
	params.AddMetadata("payer_id", inv.PayerID)

	// 3. Idempotency. A retry of the same attempt reuses the session; a new
	// attempt after a failure gets a fresh key because UpdatedAt moved.
	params.IdempotencyKey = stripe.String(fmt.Sprintf("checkout_%s_%d", inv.InvoiceID, inv.UpdatedAt.UnixNano()))

	// Context Propagation
	params.Context = ctx

	// 4. Execute (Network Call)
	sess, err := sg.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, sg.mapStripeError(err)
	}
	return &invoice.Checkout{
		Provider:  invoice.ProviderStripe,
		Reference: sess.ID,
		URL:       sess.URL,
		ExpiresAt: expiresAt,
	}, nil
}

// Lookup maps the session's state to ours.
func (sg *StripeGateway) Lookup(ctx context.Context, reference string) (CheckoutState, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := sg.client.CheckoutSessions.Get(reference, params)
	if err != nil {
		return CheckoutState{}, sg.mapStripeError(err)
	}

	state := CheckoutState{Status: CheckoutOpen}
	if sess.PaymentIntent != nil {
		state.PaymentReference = sess.PaymentIntent.ID
	}
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		state.Status = CheckoutPaid
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		state.Status = CheckoutClosed
	}
	return state, nil
}

// Cancel expires an open session so the hosted page stops taking money.
func (sg *StripeGateway) Cancel(ctx context.Context, reference string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := sg.client.CheckoutSessions.Expire(reference, params); err != nil {
		var stripeErr *stripe.Error
		// Already expired or completed: nothing left to cancel.
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusBadRequest {
			return nil
		}
		return sg.mapStripeError(err)
	}
	return nil
}

// mapStripeError converts external library errors into Domain Errors.
// This prevents 'stripe-go' types from leaking into the service layer.
func (sg *StripeGateway) mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case stripe.ErrorCodeIdempotencyKeyInUse:
			return fmt.Errorf("%w: checkout creation already in flight", domainErr.ErrProviderUnavailable)
		case stripe.ErrorCodeAmountTooSmall:
			return domainErr.Invalid("amount is below Stripe's minimum charge")
		case stripe.ErrorCodeAmountTooLarge:
			return domainErr.Invalid("amount is above Stripe's maximum charge")
		}
	}
	if IsRetryableError(err) {
		return fmt.Errorf("%w: stripe: %w", domainErr.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("stripe gateway error: %w", err)
}
