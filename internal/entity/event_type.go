package entity

import (
	"fmt"

	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
)

type AggregateType string

const (
	AggregatePayment      AggregateType = "PAYMENT"
	AggregateCompensation AggregateType = "COMPENSATION"
)

const (
	ExchangePayment      = "ledger.payment"
	ExchangeCompensation = "ledger.compensation"
)

// Exchange is the broker destination for events of the aggregate.
func (a AggregateType) Exchange() string {
	switch a {
	case AggregatePayment:
		return ExchangePayment
	case AggregateCompensation:
		return ExchangeCompensation
	default:
		return ""
	}
}

func ParseAggregateType(s string) (AggregateType, error) {
	switch a := AggregateType(s); a {
	case AggregatePayment, AggregateCompensation:
		return a, nil
	default:
		return "", &UnknownTypeError{Kind: "aggregate type", Value: s}
	}
}

type EventType string

const (
	EventPaymentRequested             EventType = "PAYMENT_REQUESTED"
	EventPaymentCompleted             EventType = "PAYMENT_COMPLETED"
	EventPaymentFailed                EventType = "PAYMENT_FAILED"
	EventPaymentCancelRequested       EventType = "PAYMENT_CANCEL_REQUESTED"
	EventPaymentCanceled              EventType = "PAYMENT_CANCELED"
	EventPaymentCompensationRequested EventType = "PAYMENT_COMPENSATION_REQUESTED"
)

const RoutingKeyCompensation = "payment.compensation"

// RoutingKey is the broker routing key for the event.
func (t EventType) RoutingKey() string {
	switch t {
	case EventPaymentRequested:
		return "payment.requested"
	case EventPaymentCompleted:
		return "payment.completed"
	case EventPaymentFailed:
		return "payment.failed"
	case EventPaymentCancelRequested:
		return "payment.cancel_requested"
	case EventPaymentCanceled:
		return "payment.canceled"
	case EventPaymentCompensationRequested:
		return RoutingKeyCompensation
	default:
		return ""
	}
}

func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventPaymentRequested, EventPaymentCompleted, EventPaymentFailed,
		EventPaymentCancelRequested, EventPaymentCanceled, EventPaymentCompensationRequested:
		return t, nil
	default:
		return "", &UnknownTypeError{Kind: "event type", Value: s}
	}
}

// ParseEventTypes parses a list of tags, failing on the first unknown one.
func ParseEventTypes(values []string) ([]EventType, error) {
	types := make([]EventType, 0, len(values))

	for _, v := range values {
		t, err := ParseEventType(v)
		if err != nil {
			return nil, err
		}

		types = append(types, t)
	}

	return types, nil
}

type UnknownTypeError struct {
	Kind  string
	Value string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
}

func (e *UnknownTypeError) Unwrap() error {
	return errs.ErrUnknownType
}
