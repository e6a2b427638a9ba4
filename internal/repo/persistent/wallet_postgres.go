package persistent

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/postgres"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	// Table
	walletsTable = "wallets"

	// Columns
	walletMemberIDColumn  = "member_id"
	walletBalanceColumn   = "balance"
	walletUpdatedAtColumn = "updated_at"
)

// WalletRepo mutates balances with single-statement row-locking updates.
type WalletRepo struct {
	*postgres.Postgres
}

func NewWalletRepo(pg *postgres.Postgres) *WalletRepo {
	return &WalletRepo{pg}
}

func (r *WalletRepo) Deposit(ctx context.Context, memberID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	sql, args, err := r.Builder.
		Insert(walletsTable).
		Columns(walletMemberIDColumn, walletBalanceColumn).
		Values(memberID, amount).
		Suffix(
			"ON CONFLICT (" + walletMemberIDColumn + ") DO UPDATE SET " +
				walletBalanceColumn + " = " + walletsTable + "." + walletBalanceColumn + " + EXCLUDED." + walletBalanceColumn + ", " +
				walletUpdatedAtColumn + " = NOW() RETURNING " + walletBalanceColumn,
		).
		ToSql()
	if err != nil {
		return decimal.Zero, fmt.Errorf("WalletRepo - Deposit - r.Builder.ToSql: %w", err)
	}

	var balance decimal.Decimal

	executor := r.GetExecutor(ctx)

	err = executor.QueryRow(ctx, sql, args...).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("WalletRepo - Deposit - executor.QueryRow: %w", err)
	}

	return balance, nil
}

// Withdraw fails with errs.ErrInsufficientBalance instead of going negative.
func (r *WalletRepo) Withdraw(ctx context.Context, memberID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	sql, args, err := r.Builder.
		Update(walletsTable).
		Set(walletBalanceColumn, squirrel.Expr(walletBalanceColumn+" - ?", amount)).
		Set(walletUpdatedAtColumn, squirrel.Expr("NOW()")).
		Where(squirrel.And{
			squirrel.Eq{walletMemberIDColumn: memberID},
			squirrel.GtOrEq{walletBalanceColumn: amount},
		}).
		Suffix("RETURNING " + walletBalanceColumn).
		ToSql()
	if err != nil {
		return decimal.Zero, fmt.Errorf("WalletRepo - Withdraw - r.Builder.ToSql: %w", err)
	}

	var balance decimal.Decimal

	executor := r.GetExecutor(ctx)

	err = executor.QueryRow(ctx, sql, args...).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("WalletRepo - Withdraw - member %d: %w", memberID, errs.ErrInsufficientBalance)
		}

		return decimal.Zero, fmt.Errorf("WalletRepo - Withdraw - executor.QueryRow: %w", err)
	}

	return balance, nil
}

// Balance locks the wallet row for the rest of the transaction. A member
// without a wallet has a zero balance.
func (r *WalletRepo) Balance(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	sql, args, err := r.Builder.
		Select(walletBalanceColumn).
		From(walletsTable).
		Where(squirrel.Eq{walletMemberIDColumn: memberID}).
		Suffix(forUpdate).
		ToSql()
	if err != nil {
		return decimal.Zero, fmt.Errorf("WalletRepo - Balance - r.Builder.ToSql: %w", err)
	}

	var balance decimal.Decimal

	executor := r.GetExecutor(ctx)

	err = executor.QueryRow(ctx, sql, args...).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}

		return decimal.Zero, fmt.Errorf("WalletRepo - Balance - executor.QueryRow: %w", err)
	}

	return balance, nil
}
