package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Kyver-Studios/Kyver-Invoices/shared/contracts"
)

// QueueClient is the publishing half of the RabbitMQ client.
type QueueClient interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// QueuePublisher hands events to the notification queue.
type QueuePublisher struct {
	client QueueClient
	queue  string
}

func NewQueuePublisher(client QueueClient, queue string) *QueuePublisher {
	return &QueuePublisher{client: client, queue: queue}
}

func (p *QueuePublisher) Notify(ctx context.Context, ev contracts.InvoiceEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal invoice event: %w", err)
	}
	if err := p.client.Publish(ctx, p.queue, body); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// QueueWorker drains the notification queue into a target notifier.
// A failed delivery is requeued once; after that it is dropped.
type QueueWorker struct {
	deliveries <-chan amqp.Delivery
	target     Notifier
	workers    int
	logger     *slog.Logger
}

func NewQueueWorker(deliveries <-chan amqp.Delivery, target Notifier, workers int, logger *slog.Logger) *QueueWorker {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueWorker{
		deliveries: deliveries,
		target:     target,
		workers:    workers,
		logger:     logger.With("component", "notification_worker"),
	}
}

// Run blocks until ctx is cancelled or the delivery channel closes.
func (w *QueueWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-w.deliveries:
					if !ok {
						w.logger.Warn("delivery channel closed", "worker", id)
						return
					}
					w.handle(ctx, d)
				}
			}
		}(i)
	}
	w.logger.Info("notification workers started", "count", w.workers)
	wg.Wait()
	w.logger.Info("notification workers stopped")
}

func (w *QueueWorker) handle(ctx context.Context, d amqp.Delivery) {
	var ev contracts.InvoiceEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		w.logger.Error("dropping undecodable notification", "error", err)
		if err := d.Nack(false, false); err != nil {
			w.logger.Error("nack failed", "error", err)
		}
		return
	}

	if err := w.target.Notify(ctx, ev); err != nil {
		requeue := !d.Redelivered
		w.logger.Warn("notification failed", "invoice_id", ev.InvoiceID, "requeue", requeue, "error", err)
		if err := d.Nack(false, requeue); err != nil {
			w.logger.Error("nack failed", "error", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		w.logger.Error("ack failed", "invoice_id", ev.InvoiceID, "error", err)
	}
}
