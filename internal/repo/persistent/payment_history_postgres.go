package persistent

import (
	"context"
	"fmt"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/postgres"
)

const (
	// Table
	historiesTable = "payment_histories"

	// Columns
	historyIDColumn           = "id"
	historyPaymentIDColumn    = "payment_id"
	historyMemberIDColumn     = "member_id"
	historyKindColumn         = "kind"
	historyAmountColumn       = "amount"
	historyBalanceAfterColumn = "balance_after"
	historyDescriptionColumn  = "description"
	historyCreatedAtColumn    = "created_at"
)

type PaymentHistoryRepo struct {
	*postgres.Postgres
}

func NewPaymentHistoryRepo(pg *postgres.Postgres) *PaymentHistoryRepo {
	return &PaymentHistoryRepo{pg}
}

func (r *PaymentHistoryRepo) Append(ctx context.Context, h *entity.PaymentHistory) error {
	sql, args, err := r.Builder.
		Insert(historiesTable).
		Columns(
			historyPaymentIDColumn,
			historyMemberIDColumn,
			historyKindColumn,
			historyAmountColumn,
			historyBalanceAfterColumn,
			historyDescriptionColumn,
			historyCreatedAtColumn,
		).
		Values(
			h.PaymentID,
			h.MemberID,
			h.Kind,
			h.Amount,
			h.BalanceAfter,
			h.Description,
			h.CreatedAt,
		).
		Suffix("RETURNING " + historyIDColumn).
		ToSql()
	if err != nil {
		return fmt.Errorf("PaymentHistoryRepo - Append - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	err = executor.QueryRow(ctx, sql, args...).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("PaymentHistoryRepo - Append - executor.QueryRow: %w", err)
	}

	return nil
}
