package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType is the type of an event.
type MessageType string

// Message types.
const (
	MessageTypeJobCompleted  MessageType = "job.completed"
	MessageTypeFlowCompleted MessageType = "flow.completed"
)

// Publisher publishes events to RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher creates a new Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message is the envelope of every event.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// JobCompletedPayload describes a settled job.
type JobCompletedPayload struct {
	RunID       string `json:"run_id"`
	Flow        string `json:"flow"`
	Location    string `json:"location"`
	Status      string `json:"status"` // success or failure
	LogLocation string `json:"log_location,omitempty"`
	Details     string `json:"details,omitempty"`
	Error       string `json:"error,omitempty"`
}

// FlowCompletedPayload describes a flow outcome.
type FlowCompletedPayload struct {
	RunID  string `json:"run_id"`
	Flow   string `json:"flow"`
	Status string `json:"status"` // succeeded or failed
	Jobs   int    `json:"jobs"`
	Failed int    `json:"failed"`
}

// NewMessage wraps a payload into a message with a fresh id.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publish sends msg to the exchange with the routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishJobCompleted publishes a job.completed event.
func (p *Publisher) PublishJobCompleted(ctx context.Context, payload JobCompletedPayload) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKeyJobCompleted, NewMessage(MessageTypeJobCompleted, payload))
}

// PublishFlowCompleted publishes a flow.completed event.
func (p *Publisher) PublishFlowCompleted(ctx context.Context, payload FlowCompletedPayload) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKeyFlowCompleted, NewMessage(MessageTypeFlowCompleted, payload))
}
