package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Confirmation struct {
	PaymentKey string
	Method     string
	ApprovedAt time.Time
}

type CancelResult struct {
	Amount     decimal.Decimal
	CanceledAt time.Time
}

// InquiryStatus partitions the gateway's view of a payment.
type InquiryStatus int

const (
	InquiryInProgress InquiryStatus = iota
	InquiryDone
	InquiryCanceledOrFailed
)

func (s InquiryStatus) String() string {
	switch s {
	case InquiryDone:
		return "done"
	case InquiryCanceledOrFailed:
		return "canceled_or_failed"
	default:
		return "in_progress"
	}
}

type Inquiry struct {
	Status     InquiryStatus
	PaymentKey string
	Method     string
	Amount     decimal.Decimal
	ApprovedAt *time.Time
}
