// internal/payment/paypal_gateway.go

package payment

import (
	"context"
	"fmt"

	"github.com/plutov/paypal/v4"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

type PayPalOptions struct {
	BrandName string
	ReturnURL string
	CancelURL string
}

// PayPalGateway implements Gateway on Orders v2 with intent CAPTURE.
// The order is captured by the webhook processor once the buyer approves it.
type PayPalGateway struct {
	client *paypal.Client
	opts   PayPalOptions
}

// NewPayPalClient builds an authenticated client. mode is "sandbox" or "live".
func NewPayPalClient(ctx context.Context, clientID, secret, mode string) (*paypal.Client, error) {
	base := paypal.APIBaseSandBox
	if mode == "live" {
		base = paypal.APIBaseLive
	}
	c, err := paypal.NewClient(clientID, secret, base)
	if err != nil {
		return nil, fmt.Errorf("failed to create paypal client: %w", err)
	}
	if _, err := c.GetAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to authenticate with paypal: %w", err)
	}
	return c, nil
}

func NewPayPalGateway(c *paypal.Client, opts PayPalOptions) *PayPalGateway {
	return &PayPalGateway{client: c, opts: opts}
}

func (pg *PayPalGateway) Provider() invoice.Provider {
	return invoice.ProviderPayPal
}

func (pg *PayPalGateway) CreateCheckout(ctx context.Context, inv *invoice.Invoice) (*invoice.Checkout, error) {
	if inv.AmountMinor <= 0 {
		return nil, domainErr.Invalid("amount must be greater than zero")
	}
	description := inv.Description
	if description == "" {
		description = "Invoice #" + inv.ShortID()
	}

	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: inv.InvoiceID.String(),
		CustomID:    inv.InvoiceID.String(),
		Description: description,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: inv.Currency,
			Value:    invoice.MajorString(inv.AmountMinor, inv.Currency),
		},
	}}
	appCtx := &paypal.ApplicationContext{
		BrandName: pg.opts.BrandName,
		ReturnURL: pg.opts.ReturnURL,
		CancelURL: pg.opts.CancelURL,
	}

	order, err := pg.client.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return nil, pg.mapPayPalError(err)
	}

	approveURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			approveURL = link.Href
			break
		}
	}
	if approveURL == "" {
		return nil, fmt.Errorf("paypal order %s has no approval link", order.ID)
	}
	return &invoice.Checkout{
		Provider:  invoice.ProviderPayPal,
		Reference: order.ID,
		URL:       approveURL,
	}, nil
}

// Lookup maps the order status: COMPLETED means captured.
func (pg *PayPalGateway) Lookup(ctx context.Context, reference string) (CheckoutState, error) {
	order, err := pg.client.GetOrder(ctx, reference)
	if err != nil {
		return CheckoutState{}, pg.mapPayPalError(err)
	}
	switch order.Status {
	case "COMPLETED":
		return CheckoutState{Status: CheckoutPaid}, nil
	case "VOIDED":
		return CheckoutState{Status: CheckoutClosed}, nil
	}
	// CREATED, SAVED, APPROVED, PAYER_ACTION_REQUIRED
	return CheckoutState{Status: CheckoutOpen}, nil
}

// Cancel is a no-op: Orders v2 has no cancel call and unapproved orders lapse on their own.
func (pg *PayPalGateway) Cancel(ctx context.Context, reference string) error {
	return nil
}

func (pg *PayPalGateway) mapPayPalError(err error) error {
	if IsRetryableError(err) {
		return fmt.Errorf("%w: paypal: %w", domainErr.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("paypal gateway error: %w", err)
}
