package payment

import (
	"context"
	"strconv"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
)

// emitCompensation records a compensation request in its own transaction.
// When even that fails the ledger and gateway have diverged and only an
// operator can fix it.
func (uc *PaymentUseCase) emitCompensation(ctx context.Context, p *entity.Payment, reason string, canceledAt time.Time, cause error) {
	event := entity.CompensationEvent{
		PaymentID:     p.ID,
		MemberID:      p.MemberID,
		Amount:        p.Amount,
		Reason:        reason,
		CanceledAt:    canceledAt,
		OriginalError: cause.Error(),
	}

	err := uc.transactor.WithinNewTransaction(ctx, func(ctx context.Context) error {
		return uc.events.Capture(ctx, event)
	})
	if err == nil {
		uc.logger.Warn("PaymentUseCase - emitCompensation - payment %d: %v", p.ID, cause)

		return
	}

	uc.logger.Error(err, "PaymentUseCase - emitCompensation - payment %d", p.ID)

	uc.alerter.Notify(ctx, entity.Alert{
		Severity: entity.SeverityCritical,
		Title:    "Gateway cancel confirmed, local refund and compensation both failed",
		Fields: map[string]string{
			"paymentId":         strconv.FormatInt(p.ID, 10),
			"memberId":          strconv.FormatInt(p.MemberID, 10),
			"amount":            p.Amount.String(),
			"originalError":     cause.Error(),
			"compensationError": err.Error(),
		},
	})
}
