// Package queue carries submits from the API server to the worker over
// RabbitMQ. The worker is the single consumer, which keeps turn writes in
// one process.
package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Submission is the wire message for one submitted user message.
type Submission struct {
	SubmitID       string `json:"submit_id"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// DeclareQueues sets up the main queue plus its retry and DLQ companions.
// Rejected deliveries dead-letter to the DLQ; messages published to the
// retry queue TTL back onto the main queue.
func DeclareQueues(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	); err != nil {
		return err
	}
	return nil
}
