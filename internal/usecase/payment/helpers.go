package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/shopspring/decimal"
)

const codeGatewayRejected = "GATEWAY_REJECTED"

type gatewayFailure interface {
	Failure() (string, string)
}

func failureOf(err error) (string, string) {
	var f gatewayFailure
	if errors.As(err, &f) {
		return f.Failure()
	}

	return codeGatewayRejected, err.Error()
}

func (uc *PaymentUseCase) now() time.Time {
	return uc.clock.Now().UTC()
}

func (uc *PaymentUseCase) requestCancel(ctx context.Context, p *entity.Payment, paymentKey, reason string) error {
	if err := p.RequestCancel(paymentKey, reason, uc.now()); err != nil {
		return err
	}

	if err := uc.payments.Update(ctx, p); err != nil {
		return fmt.Errorf("uc.payments.Update: %w", err)
	}

	return uc.events.Capture(ctx, entity.PaymentCancelRequestedEvent{
		PaymentID:  p.ID,
		MemberID:   p.MemberID,
		PaymentKey: p.PaymentKey,
		Reason:     reason,
	})
}

func (uc *PaymentUseCase) revertCancelRequest(ctx context.Context, paymentID int64) error {
	return uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		p, err := uc.payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("uc.payments.GetByIDForUpdate: %w", err)
		}

		if err = p.RevertCancelRequest(uc.now()); err != nil {
			return err
		}

		return uc.payments.Update(ctx, p)
	})
}

// cancelAtGateway treats an already canceled payment as success.
func (uc *PaymentUseCase) cancelAtGateway(ctx context.Context, p *entity.Payment, reason string) (time.Time, error) {
	res, err := uc.gateway.Cancel(ctx, p.PaymentKey, reason)
	if err != nil {
		if errors.Is(err, errs.ErrGatewayAlreadyCanceled) {
			return uc.now(), nil
		}

		return time.Time{}, err
	}

	if res.CanceledAt.IsZero() {
		return uc.now(), nil
	}

	return res.CanceledAt.UTC(), nil
}

// complete runs inside the caller's transaction on a locked payment.
func (uc *PaymentUseCase) complete(ctx context.Context, p *entity.Payment, reason string, at time.Time) error {
	if p.Status == entity.PaymentSuccess {
		if err := p.RequestCancel(p.PaymentKey, reason, uc.now()); err != nil {
			return err
		}
	}

	if p.NeedsRefund() {
		balance, err := uc.wallets.Withdraw(ctx, p.MemberID, p.Amount)
		if err != nil {
			return fmt.Errorf("uc.wallets.Withdraw: %w", err)
		}

		if err = uc.appendHistory(ctx, p, entity.HistoryRefund, balance, "payment canceled", at); err != nil {
			return err
		}
	}

	return uc.cancel(ctx, p, reason, at)
}

func (uc *PaymentUseCase) cancel(ctx context.Context, p *entity.Payment, reason string, at time.Time) error {
	if err := p.Cancel(reason, at); err != nil {
		return err
	}

	if err := uc.payments.Update(ctx, p); err != nil {
		return fmt.Errorf("uc.payments.Update: %w", err)
	}

	return uc.events.Capture(ctx, entity.PaymentCanceledEvent{
		PaymentID:  p.ID,
		MemberID:   p.MemberID,
		Amount:     p.Amount,
		Reason:     p.CancelReason,
		Refunded:   p.NeedsRefund(),
		CanceledAt: at,
	})
}

func (uc *PaymentUseCase) appendHistory(
	ctx context.Context,
	p *entity.Payment,
	kind entity.HistoryKind,
	balance decimal.Decimal,
	description string,
	at time.Time,
) error {
	err := uc.histories.Append(ctx, &entity.PaymentHistory{
		PaymentID:    p.ID,
		MemberID:     p.MemberID,
		Kind:         kind,
		Amount:       p.Amount,
		BalanceAfter: balance,
		Description:  description,
		CreatedAt:    at,
	})
	if err != nil {
		return fmt.Errorf("uc.histories.Append: %w", err)
	}

	return nil
}
