package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/chat"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

// ChatNotifier is the last hop: it DMs the payer and announces payments
// in the channel the invoice was created in. Invoices with a private
// channel get every status change posted there and their card kept current.
type ChatNotifier struct {
	poster    Poster
	providers []invoice.Provider
	logger    *slog.Logger
}

func NewChatNotifier(poster Poster, logger *slog.Logger) *ChatNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatNotifier{poster: poster, logger: logger.With("component", "chat_notifier")}
}

// WithProviders sets the pay buttons offered on refreshed cards.
func (n *ChatNotifier) WithProviders(ps []invoice.Provider) *ChatNotifier {
	n.providers = ps
	return n
}

func (n *ChatNotifier) Notify(ctx context.Context, ev contracts.InvoiceEvent) error {
	reply := chat.EventReply(ev)

	var errs []error
	if ev.PayerID != "" {
		if err := n.poster.SendDM(ctx, ev.PayerID, reply); err != nil {
			errs = append(errs, fmt.Errorf("dm payer: %w", err))
		}
	}
	if ev.ChannelID != "" && announceInChannel(ev) {
		if err := n.poster.SendChannel(ctx, ev.ChannelID, reply); err != nil {
			errs = append(errs, fmt.Errorf("post to channel: %w", err))
		}
	}
	if ev.InvoiceChannelID != "" && ev.Event == contracts.EventInvoiceStatusChanged {
		if err := n.poster.SendChannel(ctx, ev.InvoiceChannelID, reply); err != nil {
			errs = append(errs, fmt.Errorf("post to invoice channel: %w", err))
		}
		if ev.CardMessageID != "" {
			card := chat.EventCard(ev, n.providers)
			if err := n.poster.EditChannelMessage(ctx, ev.InvoiceChannelID, ev.CardMessageID, card); err != nil {
				errs = append(errs, fmt.Errorf("refresh invoice card: %w", err))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		n.logger.Warn("notification not fully delivered", "invoice_id", ev.InvoiceID, "event", ev.Event, "error", err)
		return err
	}
	n.logger.Debug("notification delivered", "invoice_id", ev.InvoiceID, "event", ev.Event, "status", ev.Status)
	return nil
}

// The create command already answers in the channel, so only money
// movements are announced there.
func announceInChannel(ev contracts.InvoiceEvent) bool {
	if ev.Event != contracts.EventInvoiceStatusChanged {
		return false
	}
	switch invoice.InvoiceStatus(ev.Status) {
	case invoice.InvoicePaid, invoice.InvoiceRefunded:
		return true
	}
	return false
}
