package repo

import (
	"context"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/shopspring/decimal"
)

type (
	// Transactor binds a transaction to the context. Repositories pick it up
	// from the context, so any repo call inside f joins the transaction.
	Transactor interface {
		WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error
		WithinNewTransaction(ctx context.Context, f func(ctx context.Context) error) error
		InTransaction(ctx context.Context) bool
		AfterCommit(ctx context.Context, hook func()) error
	}

	OutboxRepo interface {
		Create(ctx context.Context, event *entity.OutboxEvent) error
		GetByID(ctx context.Context, id int64) (*entity.OutboxEvent, error)
		FindRetryCandidates(ctx context.Context, maxRetries int, staleBefore time.Time, limit int) ([]*entity.OutboxEvent, error)
		MarkPublished(ctx context.Context, id int64, at time.Time) (bool, error)
		MarkFailed(ctx context.Context, id int64) (bool, error)
		FindExhausted(ctx context.Context, maxRetries, limit int) ([]*entity.OutboxEvent, error)
		CountExhausted(ctx context.Context, maxRetries int) (int64, error)
		CountByStatus(ctx context.Context) (map[entity.OutboxStatus]int64, error)
		FindOldPublished(ctx context.Context, before time.Time, limit int) ([]*entity.OutboxEvent, error)
		DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
		DeleteOldPublished(ctx context.Context, before time.Time, limit int) (int64, error)
	}

	PaymentRepo interface {
		Create(ctx context.Context, payment *entity.Payment) error
		GetByID(ctx context.Context, id int64) (*entity.Payment, error)
		GetByIDForUpdate(ctx context.Context, id int64) (*entity.Payment, error)
		GetByOrderIDForUpdate(ctx context.Context, orderID string) (*entity.Payment, error)
		FindStale(ctx context.Context, statuses []entity.PaymentStatus, before time.Time, limit int) ([]*entity.Payment, error)
		Update(ctx context.Context, payment *entity.Payment) error
	}

	// WalletRepo is the wallet's own lock-guarded balance API.
	WalletRepo interface {
		Deposit(ctx context.Context, memberID int64, amount decimal.Decimal) (decimal.Decimal, error)
		Withdraw(ctx context.Context, memberID int64, amount decimal.Decimal) (decimal.Decimal, error)
		Balance(ctx context.Context, memberID int64) (decimal.Decimal, error)
	}

	PaymentHistoryRepo interface {
		Append(ctx context.Context, history *entity.PaymentHistory) error
	}

	OutboxArchive interface {
		Store(ctx context.Context, key string, events []*entity.OutboxEvent) error
	}
)
