package app

import (
	"context"
	"fmt"

	"github.com/andreyxaxa/Ledger-Outbox/config"
	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	infrakafka "github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/kafka"
	infrarabbit "github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/rabbitmq"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/kafka/consumer"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/kafka/producer"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/rabbitmq"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
)

// broker is the outbound sender, the compensation source and whatever
// connection both sit on.
type broker struct {
	sender infrastructure.EventsSender
	source infrastructure.DeliverySource
	close  func() error
}

func newBroker(ctx context.Context, cfg *config.Config) (*broker, error) {
	switch cfg.Broker.Driver {
	case config.DriverRabbitMQ:
		return newRabbitMQBroker(cfg)
	case config.DriverKafka:
		return newKafkaBroker(ctx, cfg)
	default:
		return nil, fmt.Errorf("app - newBroker - %q: %w", cfg.Broker.Driver, errs.ErrUnsupportedDriver)
	}
}

func newRabbitMQBroker(cfg *config.Config) (*broker, error) {
	rmq, err := rabbitmq.New(cfg.RabbitMQ.URL, rabbitmq.DLX(cfg.RabbitMQ.DLX))
	if err != nil {
		return nil, fmt.Errorf("app - newRabbitMQBroker - rabbitmq.New: %w", err)
	}

	sender, err := infrarabbit.NewEventProducer(rmq)
	if err != nil {
		_ = rmq.Close()

		return nil, fmt.Errorf("app - newRabbitMQBroker - infrarabbit.NewEventProducer: %w", err)
	}

	source, err := infrarabbit.NewEventConsumer(
		rmq,
		cfg.RabbitMQ.Queue,
		entity.ExchangeCompensation,
		entity.RoutingKeyCompensation,
		cfg.RabbitMQ.Prefetch,
	)
	if err != nil {
		_ = sender.Close()
		_ = rmq.Close()

		return nil, fmt.Errorf("app - newRabbitMQBroker - infrarabbit.NewEventConsumer: %w", err)
	}

	return &broker{sender: sender, source: source, close: rmq.Close}, nil
}

func newKafkaBroker(ctx context.Context, cfg *config.Config) (*broker, error) {
	prod, err := producer.New(ctx, cfg.Kafka.Brokers, producer.AutoCreateTopics(true))
	if err != nil {
		return nil, fmt.Errorf("app - newKafkaBroker - producer.New: %w", err)
	}

	cons, err := consumer.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, entity.ExchangeCompensation)
	if err != nil {
		_ = prod.Close()

		return nil, fmt.Errorf("app - newKafkaBroker - consumer.New: %w", err)
	}

	sender := infrakafka.NewEventProducer(prod)
	source := infrakafka.NewEventConsumer(cons, prod.Writer, entity.RoutingKeyCompensation)

	// source writes retries through prod.Writer; the sender closes it after the source
	return &broker{sender: sender, source: source, close: func() error { return nil }}, nil
}
