package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	sharedkafka "github.com/Kyver-Studios/Kyver-Invoices/shared/kafka"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

// KafkaNotifier appends events to the invoice stream keyed by invoice id,
// so every event of one invoice is consumed in order.
type KafkaNotifier struct {
	publisher sharedkafka.Publisher
}

func NewKafkaNotifier(p sharedkafka.Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: p}
}

func (n *KafkaNotifier) Notify(ctx context.Context, ev contracts.InvoiceEvent) error {
	if err := n.publisher.Publish(ctx, ev.InvoiceID, ev); err != nil {
		return fmt.Errorf("publish invoice event: %w", err)
	}
	return nil
}

// Bridge returns a consumer handler that forwards stream events to next.
// Undecodable messages are logged and skipped; errors from next are
// returned so the consumer retries.
func Bridge(next Notifier, logger *slog.Logger) sharedkafka.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "invoice_event_bridge")
	return func(ctx context.Context, key, value []byte) error {
		var ev contracts.InvoiceEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			logger.Error("dropping undecodable invoice event", "key", string(key), "error", err)
			return nil
		}
		if err := next.Notify(ctx, ev); err != nil {
			return fmt.Errorf("forward event for invoice %s: %w", ev.InvoiceID, err)
		}
		logger.Debug("event forwarded", "invoice_id", ev.InvoiceID, "event", ev.Event)
		return nil
	}
}
