package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one message. A returned error nacks the message.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery is a received message.
type Delivery struct {
	Message Message
	Raw     amqp.Delivery
}

// Consumer reads messages from a queue until its context is done.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	declare  func(ctx context.Context) (Queue, error)
	handler  Handler
	prefetch int
	requeue  bool
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Queue Queue

	// Declare, when set, declares the queue before every subscription and
	// replaces Queue with the returned name. Server-named exclusive queues
	// are gone after a reconnect and have to be declared again.
	Declare func(ctx context.Context) (Queue, error)

	Handler  Handler
	Prefetch int  // default: 1
	Requeue  bool // requeue messages the handler failed on
}

// NewConsumer creates a new Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		declare:  cfg.Declare,
		handler:  cfg.Handler,
		prefetch: prefetch,
		requeue:  cfg.Requeue,
	}
}

// Queue returns the queue currently consumed from.
func (c *Consumer) Queue() Queue {
	return c.queue
}

// Start consumes until ctx is done. After a reconnect it declares the queue
// again (when Declare is set) and subscribes again.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		deliveries, err := c.subscribe(ctx)
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
		} else {
			c.logger.Debug("consumer started", "queue", c.queue)
			err = c.processDeliveries(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", "queue", c.queue, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	if err := c.declareQueue(ctx); err != nil {
		return nil, err
	}
	return c.setupConsume()
}

func (c *Consumer) declareQueue(ctx context.Context) error {
	if c.declare == nil {
		return nil
	}

	queue, err := c.declare(ctx)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	c.queue = queue
	c.logger.Debug("queue declared", "queue", queue)
	return nil
}

func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue),
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	msg, err := DecodeMessage(raw.Body)
	if err != nil {
		c.logger.Error("failed to decode message", "error", err, "body", string(raw.Body))
		raw.Nack(false, false)
		return
	}

	if err := c.handler(ctx, &Delivery{Message: *msg, Raw: raw}); err != nil {
		c.logger.Error("handler failed", "message_id", msg.ID, "type", msg.Type, "error", err)
		raw.Nack(false, c.requeue)
		return
	}

	raw.Ack(false)
}

// DecodeMessage parses a message body.
func DecodeMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errors.New("message has no type")
	}
	return &msg, nil
}

// ParsePayload decodes the message payload into T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// after decoding the payload is a map, so it goes through JSON again
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
