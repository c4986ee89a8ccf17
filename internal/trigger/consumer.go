package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes a raw JSON event.
type Handler interface {
	DispatchJSON(ctx context.Context, data []byte) Response
}

// Consumer feeds events from a RabbitMQ queue to a Handler, one delivery at
// a time.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(url, queue string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	logger.Info("trigger consumer connected", "queue", q.Name)

	return &Consumer{
		conn:    conn,
		channel: ch,
		queue:   q.Name,
		handler: handler,
		logger:  logger.With("component", "trigger_consumer"),
	}, nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("trigger consumer stopped")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle always acks. Failed runs are only reported in the log.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	resp := c.handler.DispatchJSON(ctx, d.Body)

	logger := c.logger.With("delivery_tag", d.DeliveryTag, "status_code", resp.StatusCode)
	if resp.StatusCode >= 400 {
		logger.Warn("trigger message failed", "body", resp.Body)
	} else {
		logger.Info("trigger message processed")
	}

	if err := d.Ack(false); err != nil {
		logger.Error("failed to ack message", "error", err)
	}
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
