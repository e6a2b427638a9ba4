package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/andreyxaxa/Ledger-Outbox/internal/repo"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type PaymentUseCase struct {
	payments   repo.PaymentRepo
	wallets    repo.WalletRepo
	histories  repo.PaymentHistoryRepo
	transactor repo.Transactor
	events     usecase.EventCapturer
	gateway    infrastructure.PaymentGateway
	alerter    infrastructure.Alerter
	orderIDs   *snowflake.Node
	clock      clockwork.Clock

	logger logger.Interface
}

var _ usecase.PaymentUseCase = (*PaymentUseCase)(nil)

func New(
	payments repo.PaymentRepo,
	wallets repo.WalletRepo,
	histories repo.PaymentHistoryRepo,
	transactor repo.Transactor,
	events usecase.EventCapturer,
	gateway infrastructure.PaymentGateway,
	alerter infrastructure.Alerter,
	orderIDs *snowflake.Node,
	clock clockwork.Clock,
	l logger.Interface,
) *PaymentUseCase {
	return &PaymentUseCase{
		payments:   payments,
		wallets:    wallets,
		histories:  histories,
		transactor: transactor,
		events:     events,
		gateway:    gateway,
		alerter:    alerter,
		orderIDs:   orderIDs,
		clock:      clock,
		logger:     l,
	}
}

// Initiate opens a PENDING payment with a fresh order id.
func (uc *PaymentUseCase) Initiate(ctx context.Context, memberID int64, amount decimal.Decimal) (*entity.Payment, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("PaymentUseCase - Initiate - amount %s: %w", amount, errs.ErrInvalidAmount)
	}

	now := uc.now()
	p := entity.NewPayment(memberID, uc.orderIDs.Generate().String(), amount, now)

	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := uc.payments.Create(ctx, &p); err != nil {
			return fmt.Errorf("uc.payments.Create: %w", err)
		}

		return uc.events.Capture(ctx, entity.PaymentRequestedEvent{
			PaymentID:   p.ID,
			MemberID:    p.MemberID,
			OrderID:     p.OrderID,
			Amount:      p.Amount,
			RequestedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("PaymentUseCase - Initiate - uc.transactor.WithinTransaction: %w", err)
	}

	return &p, nil
}

// Confirm approves a PENDING payment at the gateway and credits the wallet.
// The gateway call runs outside any transaction. A local failure after the
// gateway approved leaves the payment PENDING for reconciliation.
func (uc *PaymentUseCase) Confirm(
	ctx context.Context,
	memberID int64,
	orderID string,
	paymentKey string,
	amount decimal.Decimal,
) (*entity.Payment, error) {
	// 1. validate against the stored payment
	var p *entity.Payment

	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error

		p, err = uc.payments.GetByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("uc.payments.GetByOrderIDForUpdate: %w", err)
		}

		if err = p.AssertOwner(memberID); err != nil {
			return err
		}

		if err = p.AssertAmount(amount); err != nil {
			return err
		}

		if p.Status != entity.PaymentPending {
			return fmt.Errorf("payment %d is %s: %w", p.ID, p.Status, errs.ErrAlreadyProcessed)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("PaymentUseCase - Confirm - validate: %w", err)
	}

	// 2. gateway
	confirmation, err := uc.gateway.Confirm(ctx, paymentKey, orderID, amount)
	if err != nil {
		if !errors.Is(err, errs.ErrGatewayUnavailable) {
			code, msg := failureOf(err)
			if failErr := uc.Fail(ctx, p.ID, code, msg); failErr != nil {
				uc.logger.Error(failErr, "PaymentUseCase - Confirm - uc.Fail")
			}
		}

		return nil, fmt.Errorf("PaymentUseCase - Confirm - uc.gateway.Confirm: %w", err)
	}

	if confirmation.PaymentKey == "" {
		confirmation.PaymentKey = paymentKey
	}

	// 3. approve and credit in one transaction
	err = uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error

		p, err = uc.payments.GetByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("uc.payments.GetByOrderIDForUpdate: %w", err)
		}

		now := uc.now()

		if err = p.Approve(confirmation, now); err != nil {
			return err
		}

		if err = uc.payments.Update(ctx, p); err != nil {
			return fmt.Errorf("uc.payments.Update: %w", err)
		}

		balance, err := uc.wallets.Deposit(ctx, p.MemberID, p.Amount)
		if err != nil {
			return fmt.Errorf("uc.wallets.Deposit: %w", err)
		}

		if err = uc.appendHistory(ctx, p, entity.HistoryCharge, balance, "payment confirmed", now); err != nil {
			return err
		}

		return uc.events.Capture(ctx, entity.PaymentCompletedEvent{
			PaymentID:  p.ID,
			MemberID:   p.MemberID,
			OrderID:    p.OrderID,
			PaymentKey: p.PaymentKey,
			Amount:     p.Amount,
			Method:     p.Method,
			PaidAt:     *p.PaidAt,
		})
	})
	if err != nil {
		uc.logger.Error(err, "PaymentUseCase - Confirm - order %s approved at gateway, local commit failed", orderID)

		return nil, fmt.Errorf("PaymentUseCase - Confirm - approve: %w", err)
	}

	return p, nil
}

// Cancel reverses a SUCCESS payment for its owner: marks it
// CANCEL_REQUESTED, cancels at the gateway and completes locally.
// ErrCancelPending means the gateway side is done or undecided and the rest
// is left to reconciliation or compensation.
func (uc *PaymentUseCase) Cancel(ctx context.Context, memberID, paymentID int64, reason string) (*entity.Payment, error) {
	// 1. durable marker
	var p *entity.Payment

	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error

		p, err = uc.payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("uc.payments.GetByIDForUpdate: %w", err)
		}

		if err = p.AssertOwner(memberID); err != nil {
			return err
		}

		switch p.Status {
		case entity.PaymentSuccess:
		case entity.PaymentCanceled:
			return fmt.Errorf("payment %d: %w", p.ID, errs.ErrAlreadyProcessed)
		case entity.PaymentCancelRequested:
			return fmt.Errorf("payment %d: %w", p.ID, errs.ErrCancelPending)
		default:
			return fmt.Errorf("payment %d is %s: %w", p.ID, p.Status, errs.ErrInvalidTransition)
		}

		// the recharge is treated as spent once the balance no longer covers it
		balance, err := uc.wallets.Balance(ctx, p.MemberID)
		if err != nil {
			return fmt.Errorf("uc.wallets.Balance: %w", err)
		}

		if balance.LessThan(p.Amount) {
			return fmt.Errorf("payment %d, balance %s: %w", p.ID, balance, errs.ErrRechargeAlreadyUsed)
		}

		return uc.requestCancel(ctx, p, p.PaymentKey, reason)
	})
	if err != nil {
		return nil, fmt.Errorf("PaymentUseCase - Cancel - request: %w", err)
	}

	// 2. gateway
	canceledAt, err := uc.cancelAtGateway(ctx, p, reason)
	if err != nil {
		if errors.Is(err, errs.ErrGatewayUnavailable) {
			uc.logger.Warn("PaymentUseCase - Cancel - payment %d left CANCEL_REQUESTED: %v", p.ID, err)

			return p, fmt.Errorf("PaymentUseCase - Cancel - uc.gateway.Cancel: %w: %w", errs.ErrCancelPending, err)
		}

		if revertErr := uc.revertCancelRequest(ctx, p.ID); revertErr != nil {
			uc.logger.Error(revertErr, "PaymentUseCase - Cancel - uc.revertCancelRequest")
		}

		return nil, fmt.Errorf("PaymentUseCase - Cancel - uc.gateway.Cancel: %w", err)
	}

	// 3. local completion, compensation on failure
	if err = uc.CompleteCancellation(ctx, p.ID, reason, canceledAt); err != nil {
		uc.emitCompensation(ctx, p, reason, canceledAt, err)

		return p, fmt.Errorf("PaymentUseCase - Cancel - uc.CompleteCancellation: %w: %w", errs.ErrCancelPending, err)
	}

	canceled, err := uc.payments.GetByID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("PaymentUseCase - Cancel - uc.payments.GetByID: %w", err)
	}

	return canceled, nil
}

// CancelPending cancels a payment the gateway never approved. No wallet delta.
func (uc *PaymentUseCase) CancelPending(ctx context.Context, paymentID int64, reason string) error {
	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		p, err := uc.payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("uc.payments.GetByIDForUpdate: %w", err)
		}

		if p.Status == entity.PaymentCanceled {
			return nil
		}

		if p.Status != entity.PaymentPending {
			return fmt.Errorf("payment %d is %s: %w", p.ID, p.Status, errs.ErrInvalidTransition)
		}

		return uc.cancel(ctx, p, reason, uc.now())
	})
	if err != nil {
		return fmt.Errorf("PaymentUseCase - CancelPending - uc.transactor.WithinTransaction: %w", err)
	}

	return nil
}

// MarkCancelRequested records that a cancel was decided before the gateway is
// called. The payment must still be in status from; a payment that moved on
// since the caller read it fails with errs.ErrAlreadyProcessed.
func (uc *PaymentUseCase) MarkCancelRequested(ctx context.Context, paymentID int64, from entity.PaymentStatus, paymentKey, reason string) error {
	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		p, err := uc.payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("uc.payments.GetByIDForUpdate: %w", err)
		}

		// repeated marker from the same caller
		if p.Status == entity.PaymentCancelRequested && p.CancelReason == reason {
			return nil
		}

		if p.Status != from {
			return fmt.Errorf("payment %d is %s, expected %s: %w", p.ID, p.Status, from, errs.ErrAlreadyProcessed)
		}

		return uc.requestCancel(ctx, p, paymentKey, reason)
	})
	if err != nil {
		return fmt.Errorf("PaymentUseCase - MarkCancelRequested - uc.transactor.WithinTransaction: %w", err)
	}

	return nil
}

// CompleteCancellation applies a cancel the gateway already confirmed.
// Already CANCELED is a no-op. An empty reason keeps the recorded one.
func (uc *PaymentUseCase) CompleteCancellation(ctx context.Context, paymentID int64, reason string, at time.Time) error {
	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		p, err := uc.payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("uc.payments.GetByIDForUpdate: %w", err)
		}

		if p.Status == entity.PaymentCanceled {
			uc.logger.Debug("PaymentUseCase - CompleteCancellation - payment %d already canceled", p.ID)

			return nil
		}

		return uc.complete(ctx, p, reason, at)
	})
	if err != nil {
		return fmt.Errorf("PaymentUseCase - CompleteCancellation - uc.transactor.WithinTransaction: %w", err)
	}

	return nil
}

func (uc *PaymentUseCase) Fail(ctx context.Context, paymentID int64, code, message string) error {
	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		p, err := uc.payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("uc.payments.GetByIDForUpdate: %w", err)
		}

		if err = p.Fail(code, message, uc.now()); err != nil {
			return err
		}

		if err = uc.payments.Update(ctx, p); err != nil {
			return fmt.Errorf("uc.payments.Update: %w", err)
		}

		return uc.events.Capture(ctx, entity.PaymentFailedEvent{
			PaymentID: p.ID,
			MemberID:  p.MemberID,
			OrderID:   p.OrderID,
			Code:      code,
			Message:   message,
		})
	})
	if err != nil {
		return fmt.Errorf("PaymentUseCase - Fail - uc.transactor.WithinTransaction: %w", err)
	}

	return nil
}

// ApplyCompensation finishes a cancel from the payment's current state, so a
// redelivered event is a no-op. It reports whether anything changed.
func (uc *PaymentUseCase) ApplyCompensation(ctx context.Context, event entity.CompensationEvent) (bool, error) {
	var applied bool

	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		p, err := uc.payments.GetByIDForUpdate(ctx, event.PaymentID)
		if err != nil {
			return fmt.Errorf("uc.payments.GetByIDForUpdate: %w", err)
		}

		if err = p.AssertOwner(event.MemberID); err != nil {
			return err
		}

		if err = p.AssertAmount(event.Amount); err != nil {
			return err
		}

		if p.Status == entity.PaymentCanceled {
			return nil
		}

		if err = uc.complete(ctx, p, event.Reason, event.CanceledAt); err != nil {
			return err
		}

		applied = true

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("PaymentUseCase - ApplyCompensation - uc.transactor.WithinTransaction: %w", err)
	}

	return applied, nil
}
