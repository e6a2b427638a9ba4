package entity

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DomainEvent is raised by business code inside its transaction and captured
// into the outbox. Its JSON encoding is the message payload.
type DomainEvent interface {
	AggregateID() string
	AggregateType() AggregateType
	EventType() EventType
}

type PaymentRequestedEvent struct {
	PaymentID   int64           `json:"paymentId"`
	MemberID    int64           `json:"memberId"`
	OrderID     string          `json:"orderId"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedAt time.Time       `json:"requestedAt"`
}

func (e PaymentRequestedEvent) AggregateID() string          { return strconv.FormatInt(e.PaymentID, 10) }
func (e PaymentRequestedEvent) AggregateType() AggregateType { return AggregatePayment }
func (e PaymentRequestedEvent) EventType() EventType         { return EventPaymentRequested }

type PaymentCompletedEvent struct {
	PaymentID  int64           `json:"paymentId"`
	MemberID   int64           `json:"memberId"`
	OrderID    string          `json:"orderId"`
	PaymentKey string          `json:"paymentKey"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	PaidAt     time.Time       `json:"paidAt"`
}

func (e PaymentCompletedEvent) AggregateID() string          { return strconv.FormatInt(e.PaymentID, 10) }
func (e PaymentCompletedEvent) AggregateType() AggregateType { return AggregatePayment }
func (e PaymentCompletedEvent) EventType() EventType         { return EventPaymentCompleted }

type PaymentFailedEvent struct {
	PaymentID int64  `json:"paymentId"`
	MemberID  int64  `json:"memberId"`
	OrderID   string `json:"orderId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e PaymentFailedEvent) AggregateID() string          { return strconv.FormatInt(e.PaymentID, 10) }
func (e PaymentFailedEvent) AggregateType() AggregateType { return AggregatePayment }
func (e PaymentFailedEvent) EventType() EventType         { return EventPaymentFailed }

type PaymentCancelRequestedEvent struct {
	PaymentID  int64  `json:"paymentId"`
	MemberID   int64  `json:"memberId"`
	PaymentKey string `json:"paymentKey"`
	Reason     string `json:"reason"`
}

func (e PaymentCancelRequestedEvent) AggregateID() string          { return strconv.FormatInt(e.PaymentID, 10) }
func (e PaymentCancelRequestedEvent) AggregateType() AggregateType { return AggregatePayment }
func (e PaymentCancelRequestedEvent) EventType() EventType         { return EventPaymentCancelRequested }

type PaymentCanceledEvent struct {
	PaymentID  int64           `json:"paymentId"`
	MemberID   int64           `json:"memberId"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	Refunded   bool            `json:"refunded"`
	CanceledAt time.Time       `json:"canceledAt"`
}

func (e PaymentCanceledEvent) AggregateID() string          { return strconv.FormatInt(e.PaymentID, 10) }
func (e PaymentCanceledEvent) AggregateType() AggregateType { return AggregatePayment }
func (e PaymentCanceledEvent) EventType() EventType         { return EventPaymentCanceled }
