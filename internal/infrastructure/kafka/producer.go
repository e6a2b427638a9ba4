package kafka

import (
	"context"
	"fmt"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/kafka/producer"
	"github.com/segmentio/kafka-go"
)

const headerRoutingKey = "routingKey"

// EventProducer maps an exchange to a topic and keys messages by aggregate id,
// so one aggregate's events land on one partition in order.
type EventProducer struct {
	*producer.Producer
}

func NewEventProducer(producer *producer.Producer) *EventProducer {
	return &EventProducer{producer}
}

func (ep *EventProducer) Send(ctx context.Context, msg entity.Message) error {
	err := ep.Writer.WriteMessages(ctx, toKafka(msg))
	if err != nil {
		return fmt.Errorf("EventProducer - Send - ep.Writer.WriteMessages: %w", err)
	}

	return nil
}

func (ep *EventProducer) Close() error {
	err := ep.Producer.Close()
	if err != nil {
		return fmt.Errorf("EventProducer - Close: %w", err)
	}

	return nil
}

func toKafka(msg entity.Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+1)
	headers = append(headers, kafka.Header{Key: headerRoutingKey, Value: []byte(msg.RoutingKey)})

	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Topic:   msg.Exchange,
		Key:     []byte(msg.Key),
		Value:   msg.Body,
		Headers: headers,
	}
}
