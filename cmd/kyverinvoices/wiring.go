package main

import (
	"context"
	"log/slog"

	"github.com/plutov/paypal/v4"
	"golang.org/x/sync/errgroup"

	"github.com/Kyver-Studios/Kyver-Invoices/internal/config"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/notify"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment/webhook"
	paypalwh "github.com/Kyver-Studios/Kyver-Invoices/internal/payment/webhook/paypal"
	stripewh "github.com/Kyver-Studios/Kyver-Invoices/internal/payment/webhook/stripe"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/store"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/store/memory"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/store/postgres"
	sharedkafka "github.com/Kyver-Studios/Kyver-Invoices/shared/kafka"
	"github.com/Kyver-Studios/Kyver-Invoices/shared/rabbitmq"
)

// backend is one consistent set of stores: all Postgres or all in memory.
type backend struct {
	invoices invoice.InvoiceStore
	events   payment.EventStore
	tx       store.TxManager
	pinger   store.Pinger
	close    func()
}

func openBackend(ctx context.Context, cfg *config.Config, inMemory, migrate bool, logger *slog.Logger) (*backend, error) {
	if inMemory {
		logger.Warn("using the in-memory store, invoices are lost on restart")
		st := memory.NewStore()
		return &backend{invoices: st, events: st, tx: st, pinger: st, close: func() {}}, nil
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		URL:      cfg.Common.GetDBURL(),
		MaxConns: cfg.Store.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("schema applied")
	}
	tx := postgres.NewTxManager(pool, postgres.TxOptions{
		AcquireTimeout: cfg.Store.AcquireTimeout,
		MaxRetries:     cfg.Store.MaxRetries,
	}, logger)
	return &backend{
		invoices: postgres.NewPostgresInvoiceStore(pool, cfg.Store.AcquireTimeout),
		events:   postgres.NewPaymentEventStore(pool, cfg.Store.AcquireTimeout),
		tx:       tx,
		pinger:   tx,
		close:    pool.Close,
	}, nil
}

// buildGateways returns the enabled checkout gateways. The PayPal client is
// returned as well because its webhook processor shares it.
func buildGateways(ctx context.Context, cfg *config.Config) ([]payment.Gateway, *paypal.Client, error) {
	var gateways []payment.Gateway
	if cfg.Stripe.Enabled() {
		gateways = append(gateways, payment.NewStripeGateway(cfg.Stripe.SecretKey, payment.StripeOptions{
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
			SessionTTL: cfg.Invoice.PendingTimeout,
		}))
	}

	var pp *paypal.Client
	if cfg.PayPal.Enabled() {
		c, err := payment.NewPayPalClient(ctx, cfg.PayPal.ClientID, cfg.PayPal.Secret, cfg.PayPal.Mode)
		if err != nil {
			return nil, nil, err
		}
		pp = c
		gateways = append(gateways, payment.NewPayPalGateway(pp, payment.PayPalOptions{
			BrandName: cfg.PayPal.BrandName,
			ReturnURL: cfg.PayPal.ReturnURL,
			CancelURL: cfg.PayPal.CancelURL,
		}))
	}
	return gateways, pp, nil
}

func buildProcessors(cfg *config.Config, pp *paypal.Client, logger *slog.Logger) []webhook.Processor {
	var processors []webhook.Processor
	if cfg.Stripe.Enabled() {
		processors = append(processors, stripewh.New(cfg.Stripe.WebhookSecret))
	}
	if pp != nil {
		processors = append(processors, paypalwh.New(pp, pp, cfg.PayPal.WebhookID, logger))
	}
	return processors
}

// notifierChain is the outbound path for invoice events. With Kafka the
// stream is the entry point and a bridge feeds the next hop; with RabbitMQ
// the queue sits in front of chat; with neither, events go straight to chat.
type notifierChain struct {
	entry   notify.Notifier
	closers []func() error
}

func (n *notifierChain) Close(logger *slog.Logger) {
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			logger.Warn("failed to close notifier resource", "error", err)
		}
	}
}

// buildNotifierChain starts the consumers of the chain on g. last is the chat
// notifier; nil means this process only produces events.
func buildNotifierChain(ctx context.Context, g *errgroup.Group, cfg *config.Config, last notify.Notifier, logger *slog.Logger) (*notifierChain, error) {
	chain := &notifierChain{}
	common := cfg.Common

	var next notify.Notifier = last
	if common.RabbitMQEnabled() {
		client, err := rabbitmq.NewClient(common.GetRabbitMQURL(), logger)
		if err != nil {
			return nil, err
		}
		chain.closers = append(chain.closers, client.Close)
		if err := client.CreateQueue(common.RABBITMQ_QUEUE); err != nil {
			chain.Close(logger)
			return nil, err
		}
		if last != nil {
			if err := client.Prefetch(cfg.NotifyWorkers); err != nil {
				chain.Close(logger)
				return nil, err
			}
			deliveries, err := client.Consume(common.RABBITMQ_QUEUE)
			if err != nil {
				chain.Close(logger)
				return nil, err
			}
			worker := notify.NewQueueWorker(deliveries, last, cfg.NotifyWorkers, logger)
			g.Go(func() error {
				worker.Run(ctx)
				return nil
			})
		}
		next = notify.NewQueuePublisher(client, common.RABBITMQ_QUEUE)
		logger.Info("notifications go through rabbitmq", "queue", common.RABBITMQ_QUEUE)
	}

	if common.KafkaEnabled() {
		producer := sharedkafka.NewKafkaProducer(common.KAFKA_BROKER, common.KAFKA_TOPIC, logger)
		chain.closers = append(chain.closers, producer.Close)
		if last != nil && cfg.KafkaMode == config.KafkaModeRelay {
			consumer := sharedkafka.NewConsumer([]string{common.KAFKA_BROKER}, common.KAFKA_TOPIC, common.KAFKA_GROUP, logger)
			chain.closers = append(chain.closers, consumer.Close)
			bridge := notify.Bridge(next, logger)
			g.Go(func() error {
				consumer.Start(ctx, bridge)
				return nil
			})
		}
		next = withKafka(cfg.KafkaMode, next, notify.NewKafkaNotifier(producer))
		logger.Info("invoice events go through kafka", "topic", common.KAFKA_TOPIC, "mode", cfg.KafkaMode)
	}

	if next == nil {
		logger.Warn("no notification path configured, invoice events are dropped")
		next = notify.Nop{}
	}
	chain.entry = next
	return chain, nil
}

// withKafka places the kafka notifier in the chain. In relay mode it replaces
// the direct path, which the bridge consumer feeds instead. In audit mode
// events fan out to both and nothing consumes the topic here.
func withKafka(mode string, next, kafka notify.Notifier) notify.Notifier {
	if mode != config.KafkaModeAudit {
		return kafka
	}
	if next == nil {
		return kafka
	}
	return notify.Multi{next, kafka}
}

func buildLedger(b *backend, cfg *config.Config, logger *slog.Logger) *invoice.Ledger {
	return invoice.NewLedger(b.invoices, b.tx, cfg.Invoice.PendingTimeout, logger)
}
