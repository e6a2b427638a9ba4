// Package rabbitmq implements the AMQP connection and topology helpers.
package rabbitmq

import (
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	_defaultConnAttempts = 10
	_defaultConnTimeout  = time.Second
	_defaultDLX          = "ledger.dlx"
	_exchangeKind        = "topic"
)

type RabbitMQ struct {
	connAttempts int
	connTimeout  time.Duration
	dlx          string

	url  string
	Conn *amqp.Connection
}

func New(url string, opts ...Option) (*RabbitMQ, error) {
	r := &RabbitMQ{
		connAttempts: _defaultConnAttempts,
		connTimeout:  _defaultConnTimeout,
		dlx:          _defaultDLX,
		url:          url,
	}

	for _, opt := range opts {
		opt(r)
	}

	var err error
	for r.connAttempts > 0 {
		r.Conn, err = amqp.Dial(r.url)
		if err == nil {
			break
		}

		log.Printf("RabbitMQ is trying to connect, attempts left: %d", r.connAttempts)

		time.Sleep(r.connTimeout)

		r.connAttempts--
	}

	if err != nil {
		return nil, fmt.Errorf("RabbitMQ - New - connAttempts == 0: %w", err)
	}

	return r, nil
}

func (r *RabbitMQ) DLX() string {
	return r.dlx
}

// Channel opens a channel. With confirm set the channel is put in publisher
// confirm mode.
func (r *RabbitMQ) Channel(confirm bool) (*amqp.Channel, error) {
	ch, err := r.Conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("RabbitMQ - Channel - r.Conn.Channel: %w", err)
	}

	if confirm {
		if err = ch.Confirm(false); err != nil {
			_ = ch.Close()

			return nil, fmt.Errorf("RabbitMQ - Channel - ch.Confirm: %w", err)
		}
	}

	return ch, nil
}

// DeclareExchanges declares durable topic exchanges plus the dead-letter exchange.
func (r *RabbitMQ) DeclareExchanges(ch *amqp.Channel, names ...string) error {
	for _, name := range append(names, r.dlx) {
		err := ch.ExchangeDeclare(name, _exchangeKind, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("RabbitMQ - DeclareExchanges - ch.ExchangeDeclare %s: %w", name, err)
		}
	}

	return nil
}

// DeclareQueue declares a durable queue bound to exchange by key, rejecting
// into the dead-letter exchange, together with its "<queue>.dlq" companion.
func (r *RabbitMQ) DeclareQueue(ch *amqp.Channel, queue, exchange, key string) error {
	dlq := queue + ".dlq"

	_, err := ch.QueueDeclare(dlq, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("RabbitMQ - DeclareQueue - ch.QueueDeclare %s: %w", dlq, err)
	}

	err = ch.QueueBind(dlq, queue, r.dlx, false, nil)
	if err != nil {
		return fmt.Errorf("RabbitMQ - DeclareQueue - ch.QueueBind %s: %w", dlq, err)
	}

	_, err = ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    r.dlx,
		"x-dead-letter-routing-key": queue,
	})
	if err != nil {
		return fmt.Errorf("RabbitMQ - DeclareQueue - ch.QueueDeclare %s: %w", queue, err)
	}

	err = ch.QueueBind(queue, key, exchange, false, nil)
	if err != nil {
		return fmt.Errorf("RabbitMQ - DeclareQueue - ch.QueueBind %s: %w", queue, err)
	}

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.Conn != nil && !r.Conn.IsClosed() {
		return r.Conn.Close()
	}

	return nil
}
