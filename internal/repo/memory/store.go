// Package memory is an in-process implementation of the repositories and the
// transactor, used by use-case and controller tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/postgres"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/shopspring/decimal"
)

type txKey struct{}

type txState struct {
	hooks []func()
}

// Store holds every table. A transaction snapshots the whole store and
// restores it on rollback.
type Store struct {
	mu sync.Mutex

	outbox    map[int64]entity.OutboxEvent
	payments  map[int64]entity.Payment
	wallets   map[int64]decimal.Decimal
	histories []entity.PaymentHistory

	outboxSeq  int64
	paymentSeq int64

	failures map[string]error
	txCount  int
}

func NewStore() *Store {
	return &Store{
		outbox:   make(map[int64]entity.OutboxEvent),
		payments: make(map[int64]entity.Payment),
		wallets:  make(map[int64]decimal.Decimal),
		failures: make(map[string]error),
	}
}

// FailOn makes the named operation ("outbox.create", "wallet.withdraw", ...)
// return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failures, op)
		return
	}

	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		return fmt.Errorf("memory - %s: %w", op, err)
	}

	return nil
}

// Transactions reports how many top-level transactions were opened.
func (s *Store) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.txCount
}

type snapshot struct {
	outbox     map[int64]entity.OutboxEvent
	payments   map[int64]entity.Payment
	wallets    map[int64]decimal.Decimal
	histories  []entity.PaymentHistory
	outboxSeq  int64
	paymentSeq int64
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		outbox:     make(map[int64]entity.OutboxEvent, len(s.outbox)),
		payments:   make(map[int64]entity.Payment, len(s.payments)),
		wallets:    make(map[int64]decimal.Decimal, len(s.wallets)),
		histories:  append([]entity.PaymentHistory(nil), s.histories...),
		outboxSeq:  s.outboxSeq,
		paymentSeq: s.paymentSeq,
	}

	for k, v := range s.outbox {
		snap.outbox[k] = v
	}

	for k, v := range s.payments {
		snap.payments[k] = v
	}

	for k, v := range s.wallets {
		snap.wallets[k] = v
	}

	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outbox = snap.outbox
	s.payments = snap.payments
	s.wallets = snap.wallets
	s.histories = snap.histories
	s.outboxSeq = snap.outboxSeq
	s.paymentSeq = snap.paymentSeq
}

// Transactor implements repo.Transactor over a Store.
type Transactor struct {
	store *Store
}

func NewTransactor(s *Store) *Transactor {
	return &Transactor{store: s}
}

func (t *Transactor) InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}

func (t *Transactor) AfterCommit(ctx context.Context, hook func()) error {
	st, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return errs.ErrNoTransaction
	}

	st.hooks = append(st.hooks, hook)

	return nil
}

func (t *Transactor) WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	if t.InTransaction(ctx) {
		return f(ctx)
	}

	return t.run(ctx, f)
}

func (t *Transactor) WithinNewTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	return t.run(ctx, f)
}

func (t *Transactor) run(ctx context.Context, f func(ctx context.Context) error) error {
	t.store.mu.Lock()
	t.store.txCount++
	err := t.store.fail("tx.begin")
	t.store.mu.Unlock()

	if err != nil {
		return err
	}

	snap := t.store.snapshot()
	st := &txState{}

	if err = f(context.WithValue(ctx, txKey{}, st)); err != nil {
		t.store.restore(snap)

		return err
	}

	postgres.RunHooks(logger.Nop(), st.hooks)

	return nil
}
