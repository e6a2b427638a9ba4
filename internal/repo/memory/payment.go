package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/shopspring/decimal"
)

type PaymentRepo struct {
	s *Store
}

func NewPaymentRepo(s *Store) *PaymentRepo {
	return &PaymentRepo{s: s}
}

func (r *PaymentRepo) Create(_ context.Context, p *entity.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("payment.create"); err != nil {
		return err
	}

	r.s.paymentSeq++
	p.ID = r.s.paymentSeq
	r.s.payments[p.ID] = *p

	return nil
}

// Put stores a payment as-is, for arranging test fixtures.
func (r *PaymentRepo) Put(p entity.Payment) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if p.ID == 0 {
		r.s.paymentSeq++
		p.ID = r.s.paymentSeq
	} else if p.ID > r.s.paymentSeq {
		r.s.paymentSeq = p.ID
	}

	r.s.payments[p.ID] = p

	return p.ID
}

func (r *PaymentRepo) GetByID(_ context.Context, id int64) (*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("payment.get"); err != nil {
		return nil, err
	}

	p, ok := r.s.payments[id]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}

	return &p, nil
}

func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, id int64) (*entity.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *PaymentRepo) GetByOrderIDForUpdate(_ context.Context, orderID string) (*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}

	return nil, errs.ErrRecordNotFound
}

func (r *PaymentRepo) FindStale(_ context.Context, statuses []entity.PaymentStatus, before time.Time, limit int) ([]*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("payment.find_stale"); err != nil {
		return nil, err
	}

	out := make([]*entity.Payment, 0)

	for _, p := range r.s.payments {
		if slices.Contains(statuses, p.Status) && p.UpdatedAt.Before(before) {
			c := p
			out = append(out, &c)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}

		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (r *PaymentRepo) Update(_ context.Context, p *entity.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("payment.update"); err != nil {
		return err
	}

	old, ok := r.s.payments[p.ID]
	if !ok {
		return errs.ErrRecordNotFound
	}

	c := *p
	c.Amount = old.Amount
	c.OrderID = old.OrderID
	r.s.payments[p.ID] = c

	return nil
}

type WalletRepo struct {
	s *Store
}

func NewWalletRepo(s *Store) *WalletRepo {
	return &WalletRepo{s: s}
}

// Set overwrites a balance, for arranging test fixtures.
func (r *WalletRepo) Set(memberID int64, balance decimal.Decimal) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.wallets[memberID] = balance
}

func (r *WalletRepo) Deposit(_ context.Context, memberID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("wallet.deposit"); err != nil {
		return decimal.Zero, err
	}

	b := r.s.wallets[memberID].Add(amount)
	r.s.wallets[memberID] = b

	return b, nil
}

func (r *WalletRepo) Withdraw(_ context.Context, memberID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("wallet.withdraw"); err != nil {
		return decimal.Zero, err
	}

	b := r.s.wallets[memberID]
	if b.LessThan(amount) {
		return decimal.Zero, errs.ErrInsufficientBalance
	}

	b = b.Sub(amount)
	r.s.wallets[memberID] = b

	return b, nil
}

func (r *WalletRepo) Balance(_ context.Context, memberID int64) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.wallets[memberID], nil
}

type PaymentHistoryRepo struct {
	s *Store
}

func NewPaymentHistoryRepo(s *Store) *PaymentHistoryRepo {
	return &PaymentHistoryRepo{s: s}
}

func (r *PaymentHistoryRepo) Append(_ context.Context, h *entity.PaymentHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("history.append"); err != nil {
		return err
	}

	h.ID = int64(len(r.s.histories) + 1)
	r.s.histories = append(r.s.histories, *h)

	return nil
}

func (r *PaymentHistoryRepo) All() []entity.PaymentHistory {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return append([]entity.PaymentHistory(nil), r.s.histories...)
}
