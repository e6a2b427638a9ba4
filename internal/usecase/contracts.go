package usecase

import (
	"context"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/shopspring/decimal"
)

type (
	// EventCapturer records a domain event in the caller's transaction.
	EventCapturer interface {
		Capture(ctx context.Context, event entity.DomainEvent) error
	}

	OutboxStatusUpdater interface {
		MarkPublished(ctx context.Context, id int64) (bool, error)
		MarkFailed(ctx context.Context, id int64) (bool, error)
	}

	OutboxUseCase interface {
		PublishPending(ctx context.Context) (int, error)
		AlertExhausted(ctx context.Context) error
		CleanupOutbox(ctx context.Context) (int64, error)
		Stats(ctx context.Context) (entity.OutboxStats, error)
		Exhausted(ctx context.Context, limit int) ([]*entity.OutboxEvent, error)
	}

	PaymentUseCase interface {
		Initiate(ctx context.Context, memberID int64, amount decimal.Decimal) (*entity.Payment, error)
		Confirm(ctx context.Context, memberID int64, orderID, paymentKey string, amount decimal.Decimal) (*entity.Payment, error)
		Cancel(ctx context.Context, memberID, paymentID int64, reason string) (*entity.Payment, error)
		CancelPending(ctx context.Context, paymentID int64, reason string) error
		MarkCancelRequested(ctx context.Context, paymentID int64, from entity.PaymentStatus, paymentKey, reason string) error
		CompleteCancellation(ctx context.Context, paymentID int64, reason string, at time.Time) error
		Fail(ctx context.Context, paymentID int64, code, message string) error
		ApplyCompensation(ctx context.Context, event entity.CompensationEvent) (bool, error)
	}

	ReconciliationUseCase interface {
		Reconcile(ctx context.Context) (entity.ReconcileReport, error)
	}
)
