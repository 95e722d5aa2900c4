package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/streadway/amqp"
)

// AMQPNotifier publishes notification messages to a durable RabbitMQ queue.
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewAMQPNotifier connects to RabbitMQ and declares the mail queue.
func NewAMQPNotifier(url, queue string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	log.Printf("connected to rabbitmq, mail queue %q declared", queue)
	return &AMQPNotifier{conn: conn, channel: channel, queue: queue}, nil
}

// Send publishes a persistent JSON message to the mail queue.
func (n *AMQPNotifier) Send(_ context.Context, recipient string, kind Kind, data map[string]any) error {
	body, err := json.Marshal(Message{Recipient: recipient, Kind: kind, Data: data})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = n.channel.Publish(
		"",      // default exchange
		n.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
