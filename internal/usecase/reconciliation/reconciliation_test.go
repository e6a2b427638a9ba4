package reconciliation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/gateway"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/metrics"
	"github.com/andreyxaxa/Ledger-Outbox/internal/repo/memory"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase/outbox"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase/payment"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errUnavailable = &gateway.Error{Op: "inquire", Status: 503, Retryable: true}
	errNotFound    = &gateway.Error{Op: "inquire", Status: 404, Code: "NOT_FOUND_PAYMENT", Message: "not found"}
	errCanceled    = &gateway.Error{Op: "cancel", Status: 400, Code: "ALREADY_CANCELED_PAYMENT"}
	errForbidden   = &gateway.Error{Op: "inquire", Status: 403, Code: "FORBIDDEN_REQUEST", Message: "bad key"}
)

type inquiryResult struct {
	inquiry entity.Inquiry
	err     error
}

type fakeGateway struct {
	mu        sync.Mutex
	inquiries map[string]inquiryResult
	cancelErr error
	canceled  []string
	// onInquire runs before the inquiry is answered
	onInquire func(orderID string)
}

func (g *fakeGateway) Confirm(context.Context, string, string, decimal.Decimal) (entity.Confirmation, error) {
	return entity.Confirmation{}, nil
}

func (g *fakeGateway) Cancel(_ context.Context, paymentKey, _ string) (entity.CancelResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.canceled = append(g.canceled, paymentKey)

	return entity.CancelResult{}, g.cancelErr
}

func (g *fakeGateway) Inquire(_ context.Context, orderID string) (entity.Inquiry, error) {
	if g.onInquire != nil {
		g.onInquire(orderID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.inquiries[orderID]

	return r.inquiry, r.err
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
	store    *memory.Store
	payments *memory.PaymentRepo
	wallets  *memory.WalletRepo
	clock    *clockwork.FakeClock
	gateway  *fakeGateway
	alerts   *alertSink
	pay      *payment.PaymentUseCase
	uc       *ReconciliationUseCase
}

const member = int64(42)

var amount = decimal.NewFromInt(10000)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	tx := memory.NewTransactor(store)

	f := &fixture{
		store:    store,
		payments: memory.NewPaymentRepo(store),
		wallets:  memory.NewWalletRepo(store),
		clock:    clock,
		gateway:  &fakeGateway{inquiries: map[string]inquiryResult{}},
		alerts:   &alertSink{},
	}

	capturer := outbox.NewCapturer(memory.NewOutboxRepo(store), tx, nil, nil, clock, logger.Nop())
	payments := payment.New(f.payments, f.wallets, memory.NewPaymentHistoryRepo(store), tx, capturer, f.gateway, f.alerts, node, clock, logger.Nop())

	f.pay = payments
	f.uc = New(f.payments, payments, f.gateway, f.alerts, metrics.Nop(), clock, Config{
		StaleAfter: time.Hour,
		BatchSize:  10,
	}, logger.Nop())

	return f
}

func (f *fixture) put(orderID string, status entity.PaymentStatus, age time.Duration, paid bool) int64 {
	at := f.clock.Now().Add(-age)

	p := entity.Payment{
		MemberID:  member,
		OrderID:   orderID,
		Amount:    amount,
		Status:    status,
		CreatedAt: at,
		UpdatedAt: at,
	}

	if paid {
		p.PaymentKey = "pk-" + orderID
		p.PaidAt = &at
		f.wallets.Set(member, amount)
	}

	return f.payments.Put(p)
}

func (f *fixture) inquiry(orderID string, status entity.InquiryStatus) {
	f.gateway.inquiries[orderID] = inquiryResult{inquiry: entity.Inquiry{Status: status, PaymentKey: "pk-" + orderID}}
}

func (f *fixture) payment(t *testing.T, id int64) *entity.Payment {
	t.Helper()

	p, err := f.payments.GetByID(context.Background(), id)
	require.NoError(t, err)

	return p
}

func TestReconcile_PendingDoneIsAutoRefunded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.put("o-70", entity.PaymentPending, 70*time.Minute, false)
	f.inquiry("o-70", entity.InquiryDone)

	report, err := f.uc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.ReconcileReport{Audited: 1, Canceled: 1}, report)

	p := f.payment(t, id)
	assert.Equal(t, entity.PaymentCanceled, p.Status)
	assert.Equal(t, AutoRefundReason, p.CancelReason)
	assert.Equal(t, []string{"pk-o-70"}, f.gateway.canceled)
	assert.Empty(t, f.alerts.alerts)
}

func TestReconcile_PendingConfirmedDuringAuditIsKept(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.put("o-race", entity.PaymentPending, 2*time.Hour, false)
	f.inquiry("o-race", entity.InquiryDone)

	// the member's confirm commits between the stale scan and the audit
	f.gateway.onInquire = func(orderID string) {
		_, err := f.pay.Confirm(context.Background(), member, orderID, "pk-"+orderID, amount)
		require.NoError(t, err)
	}

	report, err := f.uc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.ReconcileReport{Audited: 1, Skipped: 1}, report)

	p := f.payment(t, id)
	assert.Equal(t, entity.PaymentSuccess, p.Status)
	assert.Empty(t, p.CancelReason)
	assert.Empty(t, f.gateway.canceled)

	balance, err := f.wallets.Balance(context.Background(), member)
	require.NoError(t, err)
	assert.True(t, amount.Equal(balance))
}

func TestReconcile_PendingRetryableIsSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.put("o-1", entity.PaymentPending, 2*time.Hour, false)
	f.gateway.inquiries["o-1"] = inquiryResult{err: errUnavailable}

	report, err := f.uc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)

	p := f.payment(t, id)
	assert.Equal(t, entity.PaymentPending, p.Status)
	assert.Equal(t, f.clock.Now().Add(-2*time.Hour), p.UpdatedAt)
	assert.Empty(t, f.alerts.alerts)
	assert.Empty(t, f.gateway.canceled)
}

func TestReconcile_PendingOutcomes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	inProgress := f.put("o-prog", entity.PaymentPending, 2*time.Hour, false)
	f.inquiry("o-prog", entity.InquiryInProgress)

	expired := f.put("o-exp", entity.PaymentPending, 2*time.Hour, false)
	f.inquiry("o-exp", entity.InquiryCanceledOrFailed)

	missing := f.put("o-miss", entity.PaymentPending, 2*time.Hour, false)
	f.gateway.inquiries["o-miss"] = inquiryResult{err: errNotFound}

	rejected := f.put("o-rej", entity.PaymentPending, 2*time.Hour, false)
	f.gateway.inquiries["o-rej"] = inquiryResult{err: errForbidden}

	fresh := f.put("o-fresh", entity.PaymentPending, 10*time.Minute, false)
	f.inquiry("o-fresh", entity.InquiryDone)

	report, err := f.uc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.ReconcileReport{Audited: 4, Canceled: 2, Failed: 1, Skipped: 1}, report)

	assert.Equal(t, entity.PaymentPending, f.payment(t, inProgress).Status)
	assert.Equal(t, entity.PaymentCanceled, f.payment(t, expired).Status)
	assert.Equal(t, entity.PaymentCanceled, f.payment(t, missing).Status)

	failed := f.payment(t, rejected)
	assert.Equal(t, entity.PaymentFail, failed.Status)
	assert.Equal(t, "FORBIDDEN_REQUEST", failed.FailureCode)

	assert.Equal(t, entity.PaymentPending, f.payment(t, fresh).Status)
	assert.Empty(t, f.gateway.canceled)
}

func TestReconcile_CancelRequestedNotFoundCompletesLocally(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.put("o-cr", entity.PaymentCancelRequested, 2*time.Hour, true)
	f.gateway.inquiries["o-cr"] = inquiryResult{err: errNotFound}

	report, err := f.uc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Canceled)

	assert.Equal(t, entity.PaymentCanceled, f.payment(t, id).Status)
	assert.Empty(t, f.gateway.canceled)

	balance, err := f.wallets.Balance(context.Background(), member)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestReconcile_CancelRequestedLiveIsCanceled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.put("o-live", entity.PaymentCancelRequested, 2*time.Hour, true)
	f.inquiry("o-live", entity.InquiryDone)
	f.gateway.cancelErr = errCanceled

	_, err := f.uc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entity.PaymentCanceled, f.payment(t, id).Status)
	assert.Equal(t, []string{"pk-o-live"}, f.gateway.canceled)
}

func TestReconcile_CancelRequestedRetryableCancelIsSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.put("o-live", entity.PaymentCancelRequested, 2*time.Hour, true)
	f.inquiry("o-live", entity.InquiryDone)
	f.gateway.cancelErr = &gateway.Error{Op: "cancel", Status: 502, Retryable: true}

	report, err := f.uc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, entity.PaymentCancelRequested, f.payment(t, id).Status)
	assert.Empty(t, f.alerts.alerts)
}

func TestReconcile_LocalFailureAfterGatewayCancelIsCritical(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.put("o-live", entity.PaymentCancelRequested, 2*time.Hour, true)
	f.put("o-next", entity.PaymentPending, 90*time.Minute, false)
	f.inquiry("o-live", entity.InquiryDone)
	f.inquiry("o-next", entity.InquiryCanceledOrFailed)
	f.wallets.Set(member, decimal.NewFromInt(1))

	report, err := f.uc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.ReconcileReport{Audited: 2, Canceled: 1, Errors: 1}, report)

	assert.Equal(t, entity.PaymentCancelRequested, f.payment(t, id).Status)

	require.Len(t, f.alerts.alerts, 1)
	alert := f.alerts.alerts[0]
	assert.Equal(t, entity.SeverityCritical, alert.Severity)
	assert.Equal(t, "42", alert.Fields["memberId"])
	assert.Equal(t, "10000", alert.Fields["amount"])
	assert.Contains(t, alert.Fields["localError"], "insufficient")
}

func TestReconcile_FindStaleError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.FailOn("payment.find_stale", assert.AnError)

	_, err := f.uc.Reconcile(context.Background())
	require.ErrorIs(t, err, assert.AnError)
}
