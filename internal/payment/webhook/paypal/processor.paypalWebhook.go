package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/plutov/paypal/v4"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
)

// Verifier checks a delivery against PayPal's verify-webhook-signature API.
// *paypal.Client satisfies it.
type Verifier interface {
	VerifyWebhookSignature(ctx context.Context, httpReq *http.Request, webhookID string) (*paypal.VerifyWebhookResponse, error)
}

// Capturer captures an approved order. *paypal.Client satisfies it.
type Capturer interface {
	CaptureOrder(ctx context.Context, orderID string, captureOrderRequest paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
}

type Processor struct {
	verifier  Verifier
	capturer  Capturer
	webhookID string
	logger    *slog.Logger
}

func New(verifier Verifier, capturer Capturer, webhookID string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		verifier:  verifier,
		capturer:  capturer,
		webhookID: webhookID,
		logger:    logger.With("component", "paypal_webhook"),
	}
}

func (p *Processor) Provider() invoice.Provider {
	return invoice.ProviderPayPal
}

type webhookEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime time.Time       `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type resource struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
	StatusDetails struct {
		Reason string `json:"reason"`
	} `json:"status_details"`
	Links []link `json:"links"`
}

func (p *Processor) VerifyAndParse(ctx context.Context, payload []byte, headers http.Header) (*payment.NormalizedEvent, error) {
	// 1. Verify Signature (Security)
	if err := p.verify(ctx, payload, headers); err != nil {
		return nil, err
	}

	// 2. Parse JSON
	var ev webhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode paypal event: %w", err)
	}
	var res resource
	if len(ev.Resource) > 0 {
		if err := json.Unmarshal(ev.Resource, &res); err != nil {
			return nil, fmt.Errorf("failed to decode paypal resource: %w", err)
		}
	}

	base := payment.NormalizedEvent{
		Provider:        invoice.ProviderPayPal,
		ExternalEventID: ev.ID,
		OccurredAt:      ev.CreateTime,
	}

	// 3. Map to Domain Event
	switch ev.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		// The buyer approved; money only moves once we capture. The capture
		// produces its own PAYMENT.CAPTURE.* event which settles the invoice.
		return nil, p.capture(ctx, res.ID)

	case "PAYMENT.CAPTURE.COMPLETED":
		base.ProviderReference = res.SupplementaryData.RelatedIDs.OrderID
		base.PaymentReference = res.ID
		base.Outcome = invoice.OutcomeSucceeded
		return &base, nil

	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		base.ProviderReference = res.SupplementaryData.RelatedIDs.OrderID
		base.PaymentReference = res.ID
		base.Outcome = invoice.OutcomeFailed
		base.ErrorCode = res.StatusDetails.Reason
		return &base, nil

	case "PAYMENT.CAPTURE.REFUNDED":
		// The resource is the refund; its "up" link points at the capture.
		captureID := captureFromLinks(res.Links)
		if captureID == "" {
			return nil, fmt.Errorf("refund %s has no capture link", res.ID)
		}
		base.ProviderReference = captureID
		base.PaymentReference = captureID
		base.Outcome = invoice.OutcomeRefunded
		return &base, nil
	}

	return nil, nil
}

func (p *Processor) verify(ctx context.Context, payload []byte, headers http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := p.verifier.VerifyWebhookSignature(ctx, req, p.webhookID)
	if err != nil {
		if payment.IsRetryableError(err) {
			return fmt.Errorf("%w: paypal verification: %w", domainErr.ErrProviderUnavailable, err)
		}
		return fmt.Errorf("%w: paypal: %w", domainErr.ErrInvalidSignature, err)
	}
	if resp == nil || resp.VerificationStatus != "SUCCESS" {
		status := ""
		if resp != nil {
			status = resp.VerificationStatus
		}
		return fmt.Errorf("%w: paypal verification status %q", domainErr.ErrInvalidSignature, status)
	}
	return nil
}

func (p *Processor) capture(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("approved order without id")
	}
	_, err := p.capturer.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err == nil {
		p.logger.Info("captured approved order", "order_id", orderID)
		return nil
	}
	if payment.IsRetryableError(err) {
		// 503 back to PayPal so the approval is redelivered.
		return fmt.Errorf("%w: capture %s: %w", domainErr.ErrProviderUnavailable, orderID, err)
	}
	// Already captured or no longer capturable. Nothing a retry would fix.
	p.logger.Warn("could not capture approved order", "order_id", orderID, "error", err)
	return nil
}

func captureFromLinks(links []link) string {
	for _, l := range links {
		if l.Rel != "up" {
			continue
		}
		href := strings.TrimRight(l.Href, "/")
		if i := strings.LastIndex(href, "/"); i >= 0 {
			return href[i+1:]
		}
	}
	return ""
}
