package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type HistoryKind string

const (
	HistoryCharge HistoryKind = "CHARGE"
	HistoryRefund HistoryKind = "REFUND"
)

// PaymentHistory records one wallet movement caused by a payment.
type PaymentHistory struct {
	ID           int64
	PaymentID    int64
	MemberID     int64
	Kind         HistoryKind
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	Description  string
	CreatedAt    time.Time
}
