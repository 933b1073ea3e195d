// Package notify delivers invoice events to people. Events can travel
// directly to chat, through a RabbitMQ queue, or through a Kafka topic that
// is bridged onto the queue; each hop implements Notifier.
package notify

import (
	"context"
	"errors"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/chat"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

type Notifier interface {
	Notify(ctx context.Context, ev contracts.InvoiceEvent) error
}

// Poster is the outbound side of a chat session.
type Poster interface {
	SendDM(ctx context.Context, userID string, r chat.Reply) error
	SendChannel(ctx context.Context, channelID string, r chat.Reply) error
	EditChannelMessage(ctx context.Context, channelID, messageID string, r chat.Reply) error
}

// Multi sends every event to each notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev contracts.InvoiceEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, contracts.InvoiceEvent) error { return nil }
