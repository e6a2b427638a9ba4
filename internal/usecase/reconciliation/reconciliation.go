// Package reconciliation audits payments stuck in PENDING or CANCEL_REQUESTED
// against the gateway and drives each to a terminal state.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/andreyxaxa/Ledger-Outbox/internal/repo"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/jonboulle/clockwork"
)

// AutoRefundReason marks payments the gateway approved after the caller
// already got an error. They are canceled, never adopted.
const AutoRefundReason = "auto-refund"

const (
	reasonGatewayCanceled = "gateway: canceled or expired"
	reasonGatewayNotFound = "gateway: payment not found"
	codeInquiryRejected   = "INQUIRY_REJECTED"
)

type Config struct {
	StaleAfter time.Duration
	BatchSize  int
}

type ReconciliationUseCase struct {
	payments repo.PaymentRepo
	payment  usecase.PaymentUseCase
	gateway  infrastructure.PaymentGateway
	alerter  infrastructure.Alerter
	metrics  infrastructure.Recorder
	clock    clockwork.Clock
	cfg      Config

	logger logger.Interface
}

var _ usecase.ReconciliationUseCase = (*ReconciliationUseCase)(nil)

func New(
	payments repo.PaymentRepo,
	payment usecase.PaymentUseCase,
	gateway infrastructure.PaymentGateway,
	alerter infrastructure.Alerter,
	m infrastructure.Recorder,
	clock clockwork.Clock,
	cfg Config,
	l logger.Interface,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		payments: payments,
		payment:  payment,
		gateway:  gateway,
		alerter:  alerter,
		metrics:  m,
		clock:    clock,
		cfg:      cfg,
		logger:   l,
	}
}

// Reconcile audits one batch. A single payment's failure never stops the batch.
func (uc *ReconciliationUseCase) Reconcile(ctx context.Context) (entity.ReconcileReport, error) {
	var report entity.ReconcileReport

	before := uc.clock.Now().UTC().Add(-uc.cfg.StaleAfter)

	stale, err := uc.payments.FindStale(ctx, []entity.PaymentStatus{
		entity.PaymentPending,
		entity.PaymentCancelRequested,
	}, before, uc.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("ReconciliationUseCase - Reconcile - uc.payments.FindStale: %w", err)
	}

	for _, p := range stale {
		if ctx.Err() != nil {
			break
		}

		var outcome string

		switch p.Status {
		case entity.PaymentPending:
			outcome = uc.reconcilePending(ctx, p)
		case entity.PaymentCancelRequested:
			outcome = uc.reconcileCancelRequested(ctx, p)
		default:
			continue
		}

		uc.metrics.Reconciled(outcome)
		report.Add(outcome)
	}

	if report.Audited > 0 {
		uc.logger.Info("ReconciliationUseCase - Reconcile - audited=%d canceled=%d failed=%d skipped=%d errors=%d",
			report.Audited, report.Canceled, report.Failed, report.Skipped, report.Errors)
	}

	return report, nil
}

func (uc *ReconciliationUseCase) reconcilePending(ctx context.Context, p *entity.Payment) string {
	inquiry, err := uc.gateway.Inquire(ctx, p.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrGatewayNotFound):
			return uc.cancelPending(ctx, p, reasonGatewayNotFound)
		case errors.Is(err, errs.ErrGatewayUnavailable):
			uc.logger.Debug("ReconciliationUseCase - reconcilePending - payment %d deferred: %v", p.ID, err)

			return entity.OutcomeSkipped
		}

		code, msg := failureOf(err)
		if err = uc.payment.Fail(ctx, p.ID, code, msg); err != nil {
			uc.logger.Error(err, "ReconciliationUseCase - reconcilePending - uc.payment.Fail")

			return entity.OutcomeError
		}

		return entity.OutcomeFailed
	}

	switch inquiry.Status {
	case entity.InquiryInProgress:
		return entity.OutcomeSkipped
	case entity.InquiryCanceledOrFailed:
		return uc.cancelPending(ctx, p, reasonGatewayCanceled)
	}

	// approved at the gateway but never confirmed locally
	paymentKey := inquiry.PaymentKey
	if paymentKey == "" {
		paymentKey = p.PaymentKey
	}

	err = uc.payment.MarkCancelRequested(ctx, p.ID, entity.PaymentPending, paymentKey, AutoRefundReason)
	if errors.Is(err, errs.ErrAlreadyProcessed) {
		uc.logger.Info("ReconciliationUseCase - reconcilePending - payment %d left PENDING during the audit: %v", p.ID, err)

		return entity.OutcomeSkipped
	}

	if err != nil {
		uc.logger.Error(err, "ReconciliationUseCase - reconcilePending - uc.payment.MarkCancelRequested")

		return entity.OutcomeError
	}

	return uc.cancelAndComplete(ctx, p, paymentKey, AutoRefundReason)
}

func (uc *ReconciliationUseCase) reconcileCancelRequested(ctx context.Context, p *entity.Payment) string {
	inquiry, err := uc.gateway.Inquire(ctx, p.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrGatewayNotFound):
			return uc.complete(ctx, p, uc.clock.Now().UTC())
		case errors.Is(err, errs.ErrGatewayUnavailable):
			uc.logger.Debug("ReconciliationUseCase - reconcileCancelRequested - payment %d deferred: %v", p.ID, err)

			return entity.OutcomeSkipped
		}

		uc.logger.Error(err, "ReconciliationUseCase - reconcileCancelRequested - uc.gateway.Inquire")

		return entity.OutcomeError
	}

	switch inquiry.Status {
	case entity.InquiryInProgress:
		return entity.OutcomeSkipped
	case entity.InquiryCanceledOrFailed:
		return uc.complete(ctx, p, uc.clock.Now().UTC())
	}

	paymentKey := p.PaymentKey
	if paymentKey == "" {
		paymentKey = inquiry.PaymentKey
	}

	return uc.cancelAndComplete(ctx, p, paymentKey, "")
}

func (uc *ReconciliationUseCase) cancelPending(ctx context.Context, p *entity.Payment, reason string) string {
	if err := uc.payment.CancelPending(ctx, p.ID, reason); err != nil {
		uc.logger.Error(err, "ReconciliationUseCase - cancelPending - uc.payment.CancelPending")

		return entity.OutcomeError
	}

	return entity.OutcomeCanceled
}

// cancelAndComplete cancels a live payment at the gateway, then locally.
func (uc *ReconciliationUseCase) cancelAndComplete(ctx context.Context, p *entity.Payment, paymentKey, reason string) string {
	cancelReason := reason
	if cancelReason == "" {
		cancelReason = p.CancelReason
	}

	canceledAt := uc.clock.Now().UTC()

	res, err := uc.gateway.Cancel(ctx, paymentKey, cancelReason)
	switch {
	case err == nil:
		if !res.CanceledAt.IsZero() {
			canceledAt = res.CanceledAt.UTC()
		}
	case errors.Is(err, errs.ErrGatewayAlreadyCanceled):
	case errors.Is(err, errs.ErrGatewayUnavailable):
		uc.logger.Debug("ReconciliationUseCase - cancelAndComplete - payment %d deferred: %v", p.ID, err)

		return entity.OutcomeSkipped
	default:
		uc.logger.Error(err, "ReconciliationUseCase - cancelAndComplete - uc.gateway.Cancel")
		uc.alerter.Notify(ctx, entity.Alert{
			Severity: entity.SeverityCritical,
			Title:    "Gateway refused to cancel a payment under reconciliation",
			Fields:   uc.fields(p, "gatewayError", err.Error()),
		})

		return entity.OutcomeError
	}

	return uc.completeWith(ctx, p, reason, canceledAt)
}

func (uc *ReconciliationUseCase) complete(ctx context.Context, p *entity.Payment, at time.Time) string {
	return uc.completeWith(ctx, p, "", at)
}

// completeWith finishes a cancel already confirmed at the gateway. Failing
// here leaves the money returned by the gateway but not by the ledger.
func (uc *ReconciliationUseCase) completeWith(ctx context.Context, p *entity.Payment, reason string, at time.Time) string {
	err := uc.payment.CompleteCancellation(ctx, p.ID, reason, at)
	if err == nil {
		return entity.OutcomeCanceled
	}

	uc.logger.Error(err, "ReconciliationUseCase - completeWith - payment %d, member %d, amount %s", p.ID, p.MemberID, p.Amount)
	uc.alerter.Notify(ctx, entity.Alert{
		Severity: entity.SeverityCritical,
		Title:    "Gateway cancel confirmed, local cancellation failed",
		Fields:   uc.fields(p, "localError", err.Error()),
	})

	return entity.OutcomeError
}

func (uc *ReconciliationUseCase) fields(p *entity.Payment, errKey, errMsg string) map[string]string {
	return map[string]string{
		"paymentId": strconv.FormatInt(p.ID, 10),
		"memberId":  strconv.FormatInt(p.MemberID, 10),
		"orderId":   p.OrderID,
		"amount":    p.Amount.String(),
		"status":    string(p.Status),
		errKey:      errMsg,
	}
}

type gatewayFailure interface {
	Failure() (string, string)
}

func failureOf(err error) (string, string) {
	var f gatewayFailure
	if errors.As(err, &f) {
		return f.Failure()
	}

	return codeInquiryRejected, err.Error()
}
