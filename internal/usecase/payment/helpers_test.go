package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/gateway"
	"github.com/andreyxaxa/Ledger-Outbox/internal/repo/memory"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase/outbox"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	errUnavailable = &gateway.Error{Op: "cancel", Status: 503, Retryable: true}
	errRejected    = &gateway.Error{Op: "confirm", Status: 400, Code: "REJECT_CARD_PAYMENT", Message: "card rejected"}
	errCanceled    = &gateway.Error{Op: "cancel", Status: 400, Code: "ALREADY_CANCELED_PAYMENT", Message: "already canceled"}
	errDBDown      = errors.New("connection reset")
)

type fakeGateway struct {
	mu         sync.Mutex
	confirmErr error
	cancelErr  error
	confirms   int
	cancels    int
	onCancel   func()
	approvedAt time.Time
}

func (g *fakeGateway) Confirm(_ context.Context, paymentKey, _ string, _ decimal.Decimal) (entity.Confirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.confirms++

	if g.confirmErr != nil {
		return entity.Confirmation{}, g.confirmErr
	}

	return entity.Confirmation{PaymentKey: paymentKey, Method: "CARD", ApprovedAt: g.approvedAt}, nil
}

func (g *fakeGateway) Cancel(_ context.Context, _, _ string) (entity.CancelResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancels++

	if g.onCancel != nil {
		g.onCancel()
	}

	if g.cancelErr != nil {
		return entity.CancelResult{}, g.cancelErr
	}

	return entity.CancelResult{CanceledAt: g.approvedAt.Add(time.Hour)}, nil
}

func (g *fakeGateway) Inquire(context.Context, string) (entity.Inquiry, error) {
	return entity.Inquiry{}, errors.New("not used")
}

type alertSink struct {
	mu     sync.Mutex
	alerts []entity.Alert
}

func (a *alertSink) Notify(_ context.Context, alert entity.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.alerts = append(a.alerts, alert)
}

type fixture struct {
	store     *memory.Store
	outbox    *memory.OutboxRepo
	payments  *memory.PaymentRepo
	wallets   *memory.WalletRepo
	histories *memory.PaymentHistoryRepo
	clock     *clockwork.FakeClock
	gateway   *fakeGateway
	alerts    *alertSink
	uc        *PaymentUseCase
}

const member = int64(42)

var amount = decimal.NewFromInt(10000)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	tx := memory.NewTransactor(store)

	f := &fixture{
		store:     store,
		outbox:    memory.NewOutboxRepo(store),
		payments:  memory.NewPaymentRepo(store),
		wallets:   memory.NewWalletRepo(store),
		histories: memory.NewPaymentHistoryRepo(store),
		clock:     clock,
		gateway:   &fakeGateway{approvedAt: clock.Now().Add(-time.Minute)},
		alerts:    &alertSink{},
	}

	capturer := outbox.NewCapturer(f.outbox, tx, nil, nil, clock, logger.Nop())
	f.uc = New(f.payments, f.wallets, f.histories, tx, capturer, f.gateway, f.alerts, node, clock, logger.Nop())

	return f
}

// paid stores a SUCCESS payment whose amount was credited to the wallet.
func (f *fixture) paid() int64 {
	paidAt := f.clock.Now().Add(-time.Hour)

	id := f.payments.Put(entity.Payment{
		MemberID:   member,
		OrderID:    "order-paid",
		PaymentKey: "pk-paid",
		Amount:     amount,
		Status:     entity.PaymentSuccess,
		Method:     "CARD",
		PaidAt:     &paidAt,
		CreatedAt:  paidAt,
		UpdatedAt:  paidAt,
	})
	f.wallets.Set(member, amount)

	return id
}

func (f *fixture) pending(orderID string) int64 {
	p := entity.NewPayment(member, orderID, amount, f.clock.Now().Add(-time.Hour))

	return f.payments.Put(p)
}

func (f *fixture) payment(t *testing.T, id int64) *entity.Payment {
	t.Helper()

	p, err := f.payments.GetByID(context.Background(), id)
	require.NoError(t, err)

	return p
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()

	b, err := f.wallets.Balance(context.Background(), member)
	require.NoError(t, err)

	return b
}

func (f *fixture) eventTypes() []entity.EventType {
	rows := f.outbox.All()

	out := make([]entity.EventType, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.EventType)
	}

	return out
}
