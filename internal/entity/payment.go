package entity

import (
	"fmt"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "PENDING"
	PaymentSuccess         PaymentStatus = "SUCCESS"
	PaymentCancelRequested PaymentStatus = "CANCEL_REQUESTED"
	PaymentCanceled        PaymentStatus = "CANCELED"
	PaymentFail            PaymentStatus = "FAIL"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentCanceled || s == PaymentFail
}

// Payment is the ledger's record of one gateway payment attempt.
// Amount never changes after creation.
type Payment struct {
	ID             int64
	MemberID       int64
	OrderID        string
	PaymentKey     string
	Amount         decimal.Decimal
	Status         PaymentStatus
	Method         string
	PaidAt         *time.Time
	CancelReason   string
	CanceledAt     *time.Time
	FailureCode    string
	FailureMessage string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewPayment(memberID int64, orderID string, amount decimal.Decimal, at time.Time) Payment {
	return Payment{
		MemberID:  memberID,
		OrderID:   orderID,
		Amount:    amount,
		Status:    PaymentPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func (p *Payment) assertPending() error {
	if p.Status != PaymentPending {
		return fmt.Errorf("payment %d is %s: %w", p.ID, p.Status, errs.ErrAlreadyProcessed)
	}

	return nil
}

// Approve records a gateway confirmation.
func (p *Payment) Approve(c Confirmation, at time.Time) error {
	if err := p.assertPending(); err != nil {
		return err
	}

	approvedAt := c.ApprovedAt
	if approvedAt.IsZero() {
		approvedAt = at
	}

	p.Status = PaymentSuccess
	p.PaymentKey = c.PaymentKey
	p.Method = c.Method
	p.PaidAt = &approvedAt
	p.UpdatedAt = at

	return nil
}

// RequestCancel sets the durable marker for a cancel not yet confirmed by the gateway.
func (p *Payment) RequestCancel(paymentKey, reason string, at time.Time) error {
	if p.Status != PaymentSuccess && p.Status != PaymentPending {
		return p.invalid(PaymentCancelRequested)
	}

	if p.PaymentKey == "" {
		p.PaymentKey = paymentKey
	}

	p.Status = PaymentCancelRequested
	p.CancelReason = reason
	p.UpdatedAt = at

	return nil
}

// RevertCancelRequest undoes RequestCancel after the gateway refused the cancel.
func (p *Payment) RevertCancelRequest(at time.Time) error {
	if p.Status != PaymentCancelRequested {
		return p.invalid(PaymentSuccess)
	}

	p.Status = PaymentPending
	if p.PaidAt != nil {
		p.Status = PaymentSuccess
	}

	p.CancelReason = ""
	p.UpdatedAt = at

	return nil
}

// Cancel completes a cancellation. Only CANCEL_REQUESTED and PENDING may cancel.
func (p *Payment) Cancel(reason string, at time.Time) error {
	if p.Status != PaymentCancelRequested && p.Status != PaymentPending {
		if p.Status == PaymentCanceled {
			return fmt.Errorf("payment %d is %s: %w", p.ID, p.Status, errs.ErrAlreadyProcessed)
		}

		return p.invalid(PaymentCanceled)
	}

	if reason != "" {
		p.CancelReason = reason
	}

	p.Status = PaymentCanceled
	p.CanceledAt = &at
	p.UpdatedAt = at

	return nil
}

// Fail records an unrecoverable processing error.
func (p *Payment) Fail(code, message string, at time.Time) error {
	if err := p.assertPending(); err != nil {
		return err
	}

	p.Status = PaymentFail
	p.FailureCode = code
	p.FailureMessage = message
	p.UpdatedAt = at

	return nil
}

func (p *Payment) AssertOwner(memberID int64) error {
	if p.MemberID != memberID {
		return fmt.Errorf("payment %d, member %d: %w", p.ID, memberID, errs.ErrOwnershipMismatch)
	}

	return nil
}

func (p *Payment) AssertAmount(amount decimal.Decimal) error {
	if !p.Amount.Equal(amount) {
		return fmt.Errorf("payment %d expects %s, got %s: %w", p.ID, p.Amount, amount, errs.ErrAmountMismatch)
	}

	return nil
}

// NeedsRefund reports whether the wallet was credited for this payment.
func (p *Payment) NeedsRefund() bool {
	return p.PaidAt != nil
}

func (p *Payment) invalid(to PaymentStatus) error {
	return fmt.Errorf("payment %d %s -> %s: %w", p.ID, p.Status, to, errs.ErrInvalidTransition)
}
