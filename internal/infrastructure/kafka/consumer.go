package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/kafka/consumer"
	"github.com/segmentio/kafka-go"
)

const (
	headerAttempt    = "x-attempt"
	headerDeadReason = "x-dead-letter-reason"
	_dlqSuffix       = ".dlq"
)

// EventConsumer reads one topic filtered by routing key. Retry re-produces the
// message to the same topic; DeadLetter produces it to "<topic>.dlq". Both
// commit the original offset afterwards.
type EventConsumer struct {
	*consumer.Consumer
	writer     *kafka.Writer
	routingKey string
}

func NewEventConsumer(consumer *consumer.Consumer, writer *kafka.Writer, routingKey string) *EventConsumer {
	return &EventConsumer{
		Consumer:   consumer,
		writer:     writer,
		routingKey: routingKey,
	}
}

func (ec *EventConsumer) Read(ctx context.Context) (infrastructure.Delivery, error) {
	for {
		msg, err := ec.Reader.FetchMessage(ctx)
		if err != nil {
			return nil, fmt.Errorf("EventConsumer - Read - ec.Reader.FetchMessage: %w", err)
		}

		d := &delivery{msg: msg, ec: ec}

		// other routing keys share the topic
		if ec.routingKey != "" && d.Header(headerRoutingKey) != ec.routingKey {
			if err = ec.commit(ctx, msg); err != nil {
				return nil, err
			}

			continue
		}

		return d, nil
	}
}

func (ec *EventConsumer) Close() error {
	err := ec.Consumer.Close()
	if err != nil {
		return fmt.Errorf("EventConsumer - Close: %w", err)
	}

	return nil
}

func (ec *EventConsumer) commit(ctx context.Context, msg kafka.Message) error {
	err := ec.Reader.CommitMessages(ctx, msg)
	if err != nil {
		return fmt.Errorf("EventConsumer - commit - ec.Reader.CommitMessages: %w", err)
	}

	return nil
}

type delivery struct {
	msg kafka.Message
	ec  *EventConsumer
}

func (d *delivery) Body() []byte {
	return d.msg.Value
}

func (d *delivery) Header(key string) string {
	for _, h := range d.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}

	return ""
}

func (d *delivery) Attempt() int {
	n, err := strconv.Atoi(d.Header(headerAttempt))
	if err != nil || n < 1 {
		return 1
	}

	return n
}

func (d *delivery) Ack(ctx context.Context) error {
	return d.ec.commit(ctx, d.msg)
}

func (d *delivery) Retry(ctx context.Context) error {
	msg := d.copyWith(d.msg.Topic, headerAttempt, strconv.Itoa(d.Attempt()+1))

	err := d.ec.writer.WriteMessages(ctx, msg)
	if err != nil {
		return fmt.Errorf("delivery - Retry - writer.WriteMessages: %w", err)
	}

	return d.ec.commit(ctx, d.msg)
}

func (d *delivery) DeadLetter(ctx context.Context, reason string) error {
	msg := d.copyWith(d.msg.Topic+_dlqSuffix, headerDeadReason, reason)

	err := d.ec.writer.WriteMessages(ctx, msg)
	if err != nil {
		return fmt.Errorf("delivery - DeadLetter - writer.WriteMessages: %w", err)
	}

	return d.ec.commit(ctx, d.msg)
}

// copyWith clones the message for topic with header key set to value.
func (d *delivery) copyWith(topic, key, value string) kafka.Message {
	headers := make([]kafka.Header, 0, len(d.msg.Headers)+1)

	for _, h := range d.msg.Headers {
		if h.Key != key {
			headers = append(headers, h)
		}
	}

	headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})

	return kafka.Message{
		Topic:   topic,
		Key:     d.msg.Key,
		Value:   d.msg.Value,
		Headers: headers,
	}
}
