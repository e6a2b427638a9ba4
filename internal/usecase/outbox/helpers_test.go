package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/metrics"
	"github.com/andreyxaxa/Ledger-Outbox/internal/repo/memory"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var errBrokerTimeout = errors.New("broker: publish timeout")

type fakeSender struct {
	mu     sync.Mutex
	err    error
	failOn map[string]bool
	sent   []entity.Message
}

func (s *fakeSender) Send(_ context.Context, msg entity.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil || s.failOn[msg.Headers[entity.HeaderEventID]] {
		return errBrokerTimeout
	}

	s.sent = append(s.sent, msg)

	return nil
}

func (s *fakeSender) Close() error { return nil }

func (s *fakeSender) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
}

func (s *fakeSender) messages() []entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]entity.Message(nil), s.sent...)
}

// inlinePool runs tasks on the caller goroutine.
type inlinePool struct {
	saturated bool
}

func (p *inlinePool) Submit(task func(ctx context.Context)) error {
	if p.saturated {
		return errs.ErrPoolSaturated
	}

	task(context.Background())

	return nil
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
	tx        *memory.Transactor
	clock     *clockwork.FakeClock
	sender    *fakeSender
	pool      *inlinePool
	alerts    *alertSink
	archive   *memory.OutboxArchive
	updater   *StatusUpdater
	hybrid    *HybridPublisher
	capturer  *Capturer
	relay     *OutboxUseCase
	relayConf RelayConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   memory.NewStore(),
		clock:   clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)),
		sender:  &fakeSender{failOn: map[string]bool{}},
		pool:    &inlinePool{},
		alerts:  &alertSink{},
		archive: memory.NewOutboxArchive(),
		relayConf: RelayConfig{
			BatchSize:    10,
			MaxRetries:   3,
			StaleAfter:   5 * time.Minute,
			Retention:    24 * time.Hour,
			CleanupBatch: 100,
			AlertLimit:   50,
			SendTimeout:  time.Second,
		},
	}

	f.outbox = memory.NewOutboxRepo(f.store)
	f.tx = memory.NewTransactor(f.store)
	f.updater = NewStatusUpdater(f.outbox, f.tx, f.clock, logger.Nop())
	f.hybrid = NewHybridPublisher(f.pool, f.sender, f.updater, metrics.Nop(), time.Second, logger.Nop())
	f.capturer = NewCapturer(f.outbox, f.tx, f.hybrid, []entity.EventType{entity.EventPaymentCompleted}, f.clock, logger.Nop())
	f.relay = New(f.outbox, f.sender, f.updater, f.archive, f.alerts, metrics.Nop(), f.clock, f.relayConf, logger.Nop())

	return f
}

func (f *fixture) row(status entity.OutboxStatus, retries int, age time.Duration) int64 {
	return f.outbox.Put(entity.OutboxEvent{
		EventID:       uuid.New(),
		EventType:     entity.EventPaymentRequested,
		AggregateType: entity.AggregatePayment,
		AggregateID:   "1",
		Payload:       []byte(`{}`),
		Status:        status,
		RetryCount:    retries,
		CreatedAt:     f.clock.Now().Add(-age),
	})
}

func (f *fixture) get(t *testing.T, id int64) *entity.OutboxEvent {
	t.Helper()

	e, err := f.outbox.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("outbox row %d: %v", id, err)
	}

	return e
}
