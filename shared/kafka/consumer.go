package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// Reader is the subset of kafka.Reader the consumer loop uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer runs a handler over every message of a topic, in order.
type Consumer struct {
	reader Reader
	logger *slog.Logger

	// HandlerTimeout bounds one handler call.
	HandlerTimeout time.Duration
	// MaxRetries is how often a failing message is retried before it is skipped.
	MaxRetries uint64
}

// Handler processes one message. A returned error triggers a retry.
type Handler func(ctx context.Context, key []byte, value []byte) error

// NewConsumer creates the reader for a consumer group.
// groupID is crucial: If you run 10 copies of this app, the GroupID ensures
// they split the work instead of all 10 processing the same message.
func NewConsumer(brokers []string, topic string, groupID string, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,    // notifications are small, deliver them as they come
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})
	c := NewConsumerWithReader(r, logger)
	c.logger = c.logger.With("topic", topic, "group", groupID)
	return c
}

// NewConsumerWithReader allows injecting a test reader.
func NewConsumerWithReader(r Reader, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:         r,
		logger:         logger.With("component", "kafka_consumer"),
		HandlerTimeout: 10 * time.Second,
		MaxRetries:     5,
	}
}

// Start fetches, handles and commits until ctx is cancelled.
// A message is committed only after the handler succeeded or its retries ran out.
func (c *Consumer) Start(ctx context.Context, handler Handler) {
	c.logger.Info("kafka consumer started")

	for {
		// 1. Check if the caller cancelled the context (Shutdown)
		if ctx.Err() != nil {
			return
		}

		// 2. WAIT for a message
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("error fetching message", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// 3. Run the handler, retrying with backoff. Skipping a message is
		// preferable to blocking the partition forever.
		op := func() error {
			hctx, cancel := context.WithTimeout(ctx, c.HandlerTimeout)
			defer cancel()
			return handler(hctx, m.Key, m.Value)
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.MaxRetries), ctx)
		err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
			c.logger.Warn("processing failed, retrying", "offset", m.Offset, "wait", wait, "error", err)
		})
		if err != nil {
			if ctx.Err() != nil {
				// Not committed: the group redelivers it after restart.
				return
			}
			c.logger.Error("giving up on message", "offset", m.Offset, "key", string(m.Key), "error", err)
		}

		// 4. Commit the message.
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit offset", "offset", m.Offset, "error", err)
		}
	}
}

// Close disconnects from the server.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
