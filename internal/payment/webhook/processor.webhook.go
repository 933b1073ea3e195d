package webhook

import (
	"context"
	"net/http"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
)

// Processor turns one provider's raw webhook into a NormalizedEvent.
type Processor interface {
	Provider() invoice.Provider
	// VerifyAndParse checks the signature and maps the payload.
	// It returns nil, nil for event types we don't act on.
	VerifyAndParse(
		ctx context.Context,
		payload []byte, // raw request body, exactly as signed
		headers http.Header, // carries the signature
	) (*payment.NormalizedEvent, error)
}

// EventHandler is what the HTTP layer hands verified events to.
type EventHandler interface {
	Handle(ctx context.Context, ev payment.NormalizedEvent) (*payment.Outcome, error)
}
