package infrastructure

import (
	"context"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/shopspring/decimal"
)

type (
	// EventsSender delivers one message and returns once the broker accepted it.
	EventsSender interface {
		Send(ctx context.Context, msg entity.Message) error
		Close() error
	}

	// Delivery is one consumed message. Exactly one of Ack, Retry or
	// DeadLetter must be called.
	Delivery interface {
		Body() []byte
		Header(key string) string
		// Attempt is 1 for the first delivery and grows with each Retry.
		Attempt() int
		Ack(ctx context.Context) error
		Retry(ctx context.Context) error
		DeadLetter(ctx context.Context, reason string) error
	}

	DeliverySource interface {
		Read(ctx context.Context) (Delivery, error)
		Close() error
	}

	PaymentGateway interface {
		Confirm(ctx context.Context, paymentKey, orderID string, amount decimal.Decimal) (entity.Confirmation, error)
		Cancel(ctx context.Context, paymentKey, reason string) (entity.CancelResult, error)
		Inquire(ctx context.Context, orderID string) (entity.Inquiry, error)
	}

	// Alerter notifies an operator. Delivery failures stay inside the implementation.
	Alerter interface {
		Notify(ctx context.Context, alert entity.Alert)
	}

	Locker interface {
		TryLock(ctx context.Context, name string, opts LeaseOptions) (Lease, bool, error)
	}

	Lease interface {
		Release(ctx context.Context) error
	}

	LeaseOptions struct {
		// AtMost bounds how long the lock is held if the holder dies.
		AtMost time.Duration
		// AtLeast keeps the lock after release so fast runs on other
		// instances do not repeat the job within the same period.
		AtLeast time.Duration
	}

	Recorder interface {
		OutboxDelivered(path string, ok bool)
		OutboxBacklog(status entity.OutboxStatus, n int64)
		OutboxExhausted(n int64)
		Reconciled(outcome string)
		Compensated(outcome string)
		AlertRaised(severity entity.Severity)
	}
)
