package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

var errNacked = errors.New("broker nacked the message")

// EventProducer publishes with publisher confirms; Send returns after the
// broker acked the message.
type EventProducer struct {
	mu sync.Mutex
	ch *amqp.Channel
}

func NewEventProducer(r *rabbitmq.RabbitMQ) (*EventProducer, error) {
	ch, err := r.Channel(true)
	if err != nil {
		return nil, fmt.Errorf("EventProducer - NewEventProducer - r.Channel: %w", err)
	}

	err = r.DeclareExchanges(ch, entity.ExchangePayment, entity.ExchangeCompensation)
	if err != nil {
		_ = ch.Close()

		return nil, fmt.Errorf("EventProducer - NewEventProducer - r.DeclareExchanges: %w", err)
	}

	return &EventProducer{ch: ch}, nil
}

func (ep *EventProducer) Send(ctx context.Context, msg entity.Message) error {
	return publish(ctx, &ep.mu, ep.ch, msg.Exchange, msg.RoutingKey, toPublishing(msg))
}

func (ep *EventProducer) Close() error {
	if ep.ch == nil || ep.ch.IsClosed() {
		return nil
	}

	err := ep.ch.Close()
	if err != nil {
		return fmt.Errorf("EventProducer - Close: %w", err)
	}

	return nil
}

func toPublishing(msg entity.Message) amqp.Publishing {
	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.Headers[entity.HeaderEventID],
		Type:         msg.Headers[entity.HeaderEventType],
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         msg.Body,
	}
}

func publish(ctx context.Context, mu *sync.Mutex, ch *amqp.Channel, exchange, key string, p amqp.Publishing) error {
	mu.Lock()
	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, p)
	mu.Unlock()

	if err != nil {
		return fmt.Errorf("rabbitmq - publish - ch.PublishWithDeferredConfirmWithContext: %w", err)
	}

	if dc == nil {
		return nil
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq - publish - dc.WaitContext: %w", err)
	}

	if !acked {
		return fmt.Errorf("rabbitmq - publish %s/%s: %w", exchange, key, errNacked)
	}

	return nil
}
