package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is an exchange name.
type Exchange string

// Queue is a queue name.
type Queue string

// RoutingKey is a routing key or binding pattern.
type RoutingKey string

// ExchangeEvents receives every run event.
const ExchangeEvents Exchange = "sasflow.events"

// Routing keys.
const (
	RoutingKeyJobCompleted  RoutingKey = "job.completed"
	RoutingKeyFlowCompleted RoutingKey = "flow.completed"
	RoutingKeyAll           RoutingKey = "#"
)

// SetupTopology declares the events exchange.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, declareExchange)
}

func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeEvents), // name
		"topic",                // type
		true,                   // durable
		false,                  // auto-deleted
		false,                  // internal
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
	}
	return nil
}

// DeclareWatchQueue declares a private queue bound to the events exchange
// with the given keys (all events when none are given). The queue is
// deleted by the server when the watcher disconnects.
func DeclareWatchQueue(ctx context.Context, conn *Connection, keys ...RoutingKey) (Queue, error) {
	if len(keys) == 0 {
		keys = []RoutingKey{RoutingKeyAll}
	}

	var name Queue
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchange(ch); err != nil {
			return err
		}

		q, err := ch.QueueDeclare(
			"",    // server generated name
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare watch queue: %w", err)
		}

		for _, key := range keys {
			if err := ch.QueueBind(q.Name, string(key), string(ExchangeEvents), false, nil); err != nil {
				return fmt.Errorf("bind %s to %s: %w", q.Name, key, err)
			}
		}

		name = Queue(q.Name)
		return nil
	})
	return name, err
}

// TopologyInfo describes the topology for logs.
func TopologyInfo() string {
	return `
  sasflow RabbitMQ topology:

    sasflow.events (topic)
    ├── job.completed   one event per settled job
    └── flow.completed  one event per flow outcome
            Consumer: sasflow flow watch (exclusive auto-delete queue)
`
}
