// Package broker publishes order events to RabbitMQ.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrClosed is returned when publishing on a closed connection.
var ErrClosed = errors.New("broker connection closed")

// RabbitMQ publishes JSON messages to a durable topic exchange.
type RabbitMQ struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// Dial connects to url and declares the exchange.
func Dial(url, exchange string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}

	return &RabbitMQ{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends body with the given routing key as a persistent message.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn.IsClosed() {
		return ErrClosed
	}
	if err := r.ch.PublishWithContext(ctx,
		r.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			Body:         body,
		},
	); err != nil {
		return errors.Wrapf(err, "publish %s", routingKey)
	}
	return nil
}

// Check reports whether the connection is still open.
func (r *RabbitMQ) Check(context.Context) error {
	if r.conn.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close closes the channel and the connection.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		_ = r.conn.Close()
		return errors.Wrap(err, "close channel")
	}
	if err := r.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return errors.Wrap(err, "close connection")
	}
	return nil
}
