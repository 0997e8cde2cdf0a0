// Package mq publishes run events to RabbitMQ and consumes them.
//
// Structure:
//   - connection.go: AMQP connection with reconnect and graceful shutdown
//   - topology.go:   exchange and watch queue declaration
//   - publisher.go:  job and flow event publishing
//   - consumer.go:   event consumption for `flow watch`
//
// Every event goes to the sasflow.events topic exchange:
//   - job.completed:  a job settled (success or failure)
//   - flow.completed: a flow reached succeeded or failed
package mq
