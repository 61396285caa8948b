package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// SinkQueue is the quorum queue HQ consumes every unit's events from
const SinkQueue = "textmend.hq.sink"

// Handler processes one delivery. Errors matching fatal are dropped, others requeued.
type Handler interface {
	Handle(ctx context.Context, routingKey string, body []byte) error
}

// RabbitMQConsumer manages the connection and message flow from the broker
type RabbitMQConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler Handler
	fatal   error
	logger  *slog.Logger
}

// NewRabbitMQConsumer connects and prepares a channel with prefetch 1.
// Handler errors wrapping fatal are nacked without requeue.
func NewRabbitMQConsumer(url string, handler Handler, fatal error, logger *slog.Logger) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// Prefetch 1 keeps per-unit ordering
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &RabbitMQConsumer{
		conn:    conn,
		channel: ch,
		handler: handler,
		fatal:   fatal,
		logger:  logger,
	}, nil
}

// Listen binds the sink queue to every unit's sync and reject keys and consumes until ctx ends
func (c *RabbitMQConsumer) Listen(ctx context.Context) error {
	if err := DeclareTopology(c.channel); err != nil {
		return err
	}

	q, err := c.channel.QueueDeclare(SinkQueue, true, false, false, false, amqp.Table{
		"x-queue-type": "quorum",
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range []string{"unit.*.sync", "unit.*.reject"} {
		if err := c.channel.QueueBind(q.Name, key, ExchangeFBtoHQ, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}

	msgs, err := c.channel.Consume(q.Name, "textmend-sink", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer is online and waiting for messages", "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *RabbitMQConsumer) dispatch(ctx context.Context, d amqp.Delivery) {
	l := c.logger.With("routing_key", d.RoutingKey, "delivery_tag", d.DeliveryTag)

	err := c.handler.Handle(ctx, d.RoutingKey, d.Body)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			l.Error("Failed to Ack message", "error", err)
		}
	case c.fatal != nil && errors.Is(err, c.fatal):
		l.Error("Dropping poison message", "error", err)
		_ = d.Nack(false, false)
	default:
		l.Error("Processing failed, requeueing", "error", err)
		select {
		case <-time.After(5 * time.Second): // throttle retries
		case <-ctx.Done():
		}
		_ = d.Nack(false, true)
	}
}

// Close gracefully terminates RabbitMQ resources
func (c *RabbitMQConsumer) Close() {
	c.logger.Info("Shutting down RabbitMQ consumer")
	c.channel.Close()
	c.conn.Close()
}
