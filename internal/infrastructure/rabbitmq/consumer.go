package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

const headerRetryCount = "x-retry-count"

var errDeliveriesClosed = errors.New("deliveries channel closed")

// EventConsumer reads a queue bound to an exchange. Rejected deliveries go to
// the queue's dead-letter companion.
type EventConsumer struct {
	consumeCh *amqp.Channel
	publishCh *amqp.Channel
	pubMu     sync.Mutex

	deliveries <-chan amqp.Delivery
}

func NewEventConsumer(r *rabbitmq.RabbitMQ, queue, exchange, key string, prefetch int) (*EventConsumer, error) {
	consumeCh, err := r.Channel(false)
	if err != nil {
		return nil, fmt.Errorf("EventConsumer - NewEventConsumer - r.Channel: %w", err)
	}

	publishCh, err := r.Channel(true)
	if err != nil {
		_ = consumeCh.Close()

		return nil, fmt.Errorf("EventConsumer - NewEventConsumer - r.Channel: %w", err)
	}

	c := &EventConsumer{consumeCh: consumeCh, publishCh: publishCh}

	if err = c.setup(r, queue, exchange, key, prefetch); err != nil {
		_ = c.Close()

		return nil, err
	}

	return c, nil
}

func (c *EventConsumer) setup(r *rabbitmq.RabbitMQ, queue, exchange, key string, prefetch int) error {
	err := r.DeclareExchanges(c.consumeCh, exchange)
	if err != nil {
		return fmt.Errorf("EventConsumer - setup - r.DeclareExchanges: %w", err)
	}

	err = r.DeclareQueue(c.consumeCh, queue, exchange, key)
	if err != nil {
		return fmt.Errorf("EventConsumer - setup - r.DeclareQueue: %w", err)
	}

	err = c.consumeCh.Qos(prefetch, 0, false)
	if err != nil {
		return fmt.Errorf("EventConsumer - setup - ch.Qos: %w", err)
	}

	c.deliveries, err = c.consumeCh.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("EventConsumer - setup - ch.Consume: %w", err)
	}

	return nil
}

func (c *EventConsumer) Read(ctx context.Context) (infrastructure.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			return nil, fmt.Errorf("EventConsumer - Read: %w", errDeliveriesClosed)
		}

		return &delivery{d: d, c: c}, nil
	}
}

func (c *EventConsumer) Close() error {
	var errsList []error

	for _, ch := range []*amqp.Channel{c.consumeCh, c.publishCh} {
		if ch != nil && !ch.IsClosed() {
			if err := ch.Close(); err != nil {
				errsList = append(errsList, err)
			}
		}
	}

	if err := errors.Join(errsList...); err != nil {
		return fmt.Errorf("EventConsumer - Close: %w", err)
	}

	return nil
}

type delivery struct {
	d amqp.Delivery
	c *EventConsumer
}

func (d *delivery) Body() []byte {
	return d.d.Body
}

func (d *delivery) Header(key string) string {
	v, ok := d.d.Headers[key]
	if !ok {
		return ""
	}

	return fmt.Sprint(v)
}

func (d *delivery) Attempt() int {
	return retryCount(d.d.Headers) + 1
}

func (d *delivery) Ack(_ context.Context) error {
	if err := d.d.Ack(false); err != nil {
		return fmt.Errorf("delivery - Ack: %w", err)
	}

	return nil
}

// Retry republishes a copy with the retry counter bumped, then acks the original.
func (d *delivery) Retry(ctx context.Context) error {
	headers := make(amqp.Table, len(d.d.Headers)+1)
	for k, v := range d.d.Headers {
		headers[k] = v
	}

	headers[headerRetryCount] = int32(retryCount(d.d.Headers) + 1) //nolint:gosec // bounded by max redeliveries

	err := publish(ctx, &d.c.pubMu, d.c.publishCh, d.d.Exchange, d.d.RoutingKey, amqp.Publishing{
		ContentType:  d.d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.d.MessageId,
		Type:         d.d.Type,
		Timestamp:    d.d.Timestamp,
		Headers:      headers,
		Body:         d.d.Body,
	})
	if err != nil {
		if nackErr := d.d.Nack(false, true); nackErr != nil {
			err = errors.Join(err, nackErr)
		}

		return fmt.Errorf("delivery - Retry: %w", err)
	}

	return d.Ack(ctx)
}

// DeadLetter rejects without requeue, routing the message to the DLX.
func (d *delivery) DeadLetter(_ context.Context, _ string) error {
	if err := d.d.Nack(false, false); err != nil {
		return fmt.Errorf("delivery - DeadLetter: %w", err)
	}

	return nil
}

func retryCount(h amqp.Table) int {
	switch v := h[headerRetryCount].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
