package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitmqClient struct {
	//conn is a tcp connection to rabbitmq server
	conn   *amqp.Connection
	chn    *amqp.Channel
	logger *slog.Logger
}

func NewClient(url string, logger *slog.Logger) (*RabbitmqClient, error) {
	//Dial the server
	//this opens the tcp connection to rabbitmq server
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	//Open a channel. This open a logical session inside the connection.
	chn, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RabbitmqClient{
		conn:   conn,
		chn:    chn,
		logger: logger.With("component", "rabbitmq"),
	}, nil
}

// Close cleans up
func (r *RabbitmqClient) Close() error {
	if err := r.chn.Close(); err != nil && !r.conn.IsClosed() {
		return fmt.Errorf("failed to close channel: %w", err)
	}
	if err := r.conn.Close(); err != nil && err != amqp.ErrClosed {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// CreateQueue prepares a durable queue to hold messages.
func (r *RabbitmqClient) CreateQueue(queueName string) error {
	_, err := r.chn.QueueDeclare(
		queueName, //name of queue
		true,      //durable
		false,     //delete when unused
		false,     //exclusive
		false,     //no-wait
		nil,       //arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	return nil
}

// Prefetch limits how many unacked deliveries a consumer holds at once.
func (r *RabbitmqClient) Prefetch(count int) error {
	if err := r.chn.Qos(count, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}
	return nil
}

// Publish sends a message to a specific queue.
func (r *RabbitmqClient) Publish(ctx context.Context, queueName string, body []byte) error {
	err := r.chn.PublishWithContext(
		ctx,
		"",        //exchange
		queueName, //routing key (queue name)
		false,     //mandatory
		false,     //immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // survive a broker restart
			Body:         body,            //actual data payload
		},
	)
	if err != nil {
		r.logger.Error("publish failed", "queue", queueName, "error", err)
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}
	return nil
}

// Consume starts listening for messages from a specific queue.
// It returns a read only channel that delivers messages as they arrive;
// every delivery must be acked or nacked by the caller.
func (r *RabbitmqClient) Consume(queueName string) (<-chan amqp.Delivery, error) {
	msgs, err := r.chn.Consume(
		queueName, //queue
		"",        //consumer
		false,     //auto-ack
		false,     //exclusive
		false,     //no-local
		false,     //no-wait
		nil,       //args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", queueName, err)
	}
	return msgs, nil
}
