package entity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/shopspring/decimal"
)

// CompensationEvent asks the ledger to re-apply a refund for a payment that
// was canceled at the gateway but not locally.
type CompensationEvent struct {
	PaymentID     int64           `json:"paymentId"`
	MemberID      int64           `json:"memberId"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	CanceledAt    time.Time       `json:"canceledAt"`
	OriginalError string          `json:"originalError,omitempty"`
}

func (e CompensationEvent) AggregateID() string          { return strconv.FormatInt(e.PaymentID, 10) }
func (e CompensationEvent) AggregateType() AggregateType { return AggregateCompensation }
func (e CompensationEvent) EventType() EventType         { return EventPaymentCompensationRequested }

// Validate rejects payloads that cannot be applied.
func (e CompensationEvent) Validate() error {
	switch {
	case e.PaymentID <= 0:
		return fmt.Errorf("paymentId must be positive: %w", errs.ErrMalformedPayload)
	case e.MemberID <= 0:
		return fmt.Errorf("memberId must be positive: %w", errs.ErrMalformedPayload)
	case !e.Amount.IsPositive():
		return fmt.Errorf("amount must be positive: %w", errs.ErrMalformedPayload)
	case e.CanceledAt.IsZero():
		return fmt.Errorf("canceledAt is required: %w", errs.ErrMalformedPayload)
	}

	return nil
}
