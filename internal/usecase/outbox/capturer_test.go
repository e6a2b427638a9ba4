package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unencodable struct {
	Ch chan int `json:"ch"`
}

func (unencodable) AggregateID() string                 { return "7" }
func (unencodable) AggregateType() entity.AggregateType { return entity.AggregatePayment }
func (unencodable) EventType() entity.EventType         { return entity.EventPaymentRequested }

func completed(id int64) entity.PaymentCompletedEvent {
	return entity.PaymentCompletedEvent{
		PaymentID:  id,
		MemberID:   42,
		OrderID:    "order-1",
		PaymentKey: "pk-1",
		Amount:     decimal.NewFromInt(10000),
		Method:     "CARD",
		PaidAt:     time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC),
	}
}

func TestCapturer_RequiresTransaction(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	err := f.capturer.Capture(context.Background(), completed(1))
	require.ErrorIs(t, err, errs.ErrNoTransaction)
	assert.Empty(t, f.outbox.All())
}

func TestCapturer_SerializationFailureRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	err := f.tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		if err := f.capturer.Capture(ctx, completed(1)); err != nil {
			return err
		}

		return f.capturer.Capture(ctx, unencodable{})
	})

	require.ErrorIs(t, err, errs.ErrSerialization)
	assert.Empty(t, f.outbox.All())
	assert.Empty(t, f.sender.messages())
}

func TestCapturer_PushesAfterCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	err := f.tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		if err := f.capturer.Capture(ctx, completed(5)); err != nil {
			return err
		}

		assert.Empty(t, f.sender.messages(), "push must wait for commit")

		return nil
	})
	require.NoError(t, err)

	rows := f.outbox.All()
	require.Len(t, rows, 1)
	assert.Equal(t, entity.OutboxPublished, rows[0].Status)
	assert.Equal(t, "5", rows[0].AggregateID)

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, entity.ExchangePayment, msgs[0].Exchange)
	assert.Equal(t, "payment.completed", msgs[0].RoutingKey)
	assert.Equal(t, rows[0].EventID.String(), msgs[0].Headers[entity.HeaderEventID])
	assert.Equal(t, "PAYMENT_COMPLETED", msgs[0].Headers[entity.HeaderEventType])
	assert.Equal(t, "5", msgs[0].Headers[entity.HeaderAggregateID])
	assert.JSONEq(t, `{"paymentId":5,"memberId":42,"orderId":"order-1","paymentKey":"pk-1","amount":"10000","method":"CARD","paidAt":"2026-10-19T11:00:00Z"}`, string(msgs[0].Body))
}

func TestCapturer_RollbackNeverPushes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	boom := errors.New("business write failed")

	err := f.tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		if err := f.capturer.Capture(ctx, completed(5)); err != nil {
			return err
		}

		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Empty(t, f.outbox.All())
	assert.Empty(t, f.sender.messages())
}

func TestCapturer_NonHybridTypeStaysInit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	err := f.tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		return f.capturer.Capture(ctx, entity.PaymentRequestedEvent{PaymentID: 3, MemberID: 1, OrderID: "o", Amount: decimal.NewFromInt(1)})
	})
	require.NoError(t, err)

	rows := f.outbox.All()
	require.Len(t, rows, 1)
	assert.Equal(t, entity.OutboxInit, rows[0].Status)
	assert.Equal(t, f.clock.Now().UTC(), rows[0].CreatedAt)
	assert.Empty(t, f.sender.messages())
}
