package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
)

type Processor struct {
	secret string
}

func New(secret string) *Processor {
	return &Processor{secret: secret}
}

func (p *Processor) Provider() invoice.Provider {
	return invoice.ProviderStripe
}

func (p *Processor) VerifyAndParse(ctx context.Context, payload []byte, headers http.Header) (*payment.NormalizedEvent, error) {
	// 1. Verify Signature (Security)
	event, err := webhook.ConstructEventWithOptions(
		payload,
		headers.Get("Stripe-Signature"),
		p.secret,
		// The endpoint's API version is pinned in the dashboard, not by this library.
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe: %w", domainErr.ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, nil
	}

	base := payment.NormalizedEvent{
		Provider:        invoice.ProviderStripe,
		ExternalEventID: event.ID,
		OccurredAt:      time.Unix(event.Created, 0).UTC(),
	}

	// 2. Parse JSON and map to Domain Event
	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded":
		sess, err := decodeSession(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		// Delayed methods (bank debits) complete the session before the money moves.
		if event.Type == "checkout.session.completed" && sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return nil, nil
		}
		base.ProviderReference = sess.ID
		base.PaymentReference = paymentIntentID(sess)
		base.Outcome = invoice.OutcomeSucceeded
		return &base, nil

	case "checkout.session.async_payment_failed",
		"checkout.session.expired":
		sess, err := decodeSession(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		base.ProviderReference = sess.ID
		base.PaymentReference = paymentIntentID(sess)
		base.Outcome = invoice.OutcomeFailed
		if event.Type == "checkout.session.expired" {
			// The ledger decides between EXPIRED and a retry from the window.
			base.Outcome = invoice.OutcomeExpired
			base.ErrorCode = "session_expired"
		}
		return &base, nil

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("failed to decode charge: %w", err)
		}
		// Partial refunds leave the invoice paid.
		if !ch.Refunded || ch.PaymentIntent == nil {
			return nil, nil
		}
		base.ProviderReference = ch.PaymentIntent.ID
		base.PaymentReference = ch.PaymentIntent.ID
		base.Outcome = invoice.OutcomeRefunded
		return &base, nil
	}

	// Return nil, nil for events we ignore
	return nil, nil
}

func decodeSession(raw json.RawMessage) (*stripe.CheckoutSession, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if sess.ID == "" {
		return nil, fmt.Errorf("checkout session without id")
	}
	return &sess, nil
}

func paymentIntentID(sess *stripe.CheckoutSession) string {
	if sess.PaymentIntent == nil {
		return ""
	}
	return sess.PaymentIntent.ID
}
