package persistent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/postgres"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/jackc/pgx/v5"
)

const (
	// Table
	paymentsTable = "payments"

	// Columns
	paymentIDColumn             = "id"
	paymentMemberIDColumn       = "member_id"
	paymentOrderIDColumn        = "order_id"
	paymentKeyColumn            = "payment_key"
	paymentAmountColumn         = "amount"
	paymentStatusColumn         = "status"
	paymentMethodColumn         = "method"
	paymentPaidAtColumn         = "paid_at"
	paymentCancelReasonColumn   = "cancel_reason"
	paymentCanceledAtColumn     = "canceled_at"
	paymentFailureCodeColumn    = "failure_code"
	paymentFailureMessageColumn = "failure_message"
	paymentCreatedAtColumn      = "created_at"
	paymentUpdatedAtColumn      = "updated_at"

	forUpdate = "FOR UPDATE"
)

var paymentColumns = []string{
	paymentIDColumn,
	paymentMemberIDColumn,
	paymentOrderIDColumn,
	"COALESCE(" + paymentKeyColumn + ", '')",
	paymentAmountColumn,
	paymentStatusColumn,
	"COALESCE(" + paymentMethodColumn + ", '')",
	paymentPaidAtColumn,
	"COALESCE(" + paymentCancelReasonColumn + ", '')",
	paymentCanceledAtColumn,
	"COALESCE(" + paymentFailureCodeColumn + ", '')",
	"COALESCE(" + paymentFailureMessageColumn + ", '')",
	paymentCreatedAtColumn,
	paymentUpdatedAtColumn,
}

type PaymentRepo struct {
	*postgres.Postgres
}

func NewPaymentRepo(pg *postgres.Postgres) *PaymentRepo {
	return &PaymentRepo{pg}
}

func (r *PaymentRepo) Create(ctx context.Context, p *entity.Payment) error {
	sql, args, err := r.Builder.
		Insert(paymentsTable).
		Columns(
			paymentMemberIDColumn,
			paymentOrderIDColumn,
			paymentAmountColumn,
			paymentStatusColumn,
			paymentCreatedAtColumn,
			paymentUpdatedAtColumn,
		).
		Values(
			p.MemberID,
			p.OrderID,
			p.Amount,
			p.Status,
			p.CreatedAt,
			p.UpdatedAt,
		).
		Suffix("RETURNING " + paymentIDColumn).
		ToSql()
	if err != nil {
		return fmt.Errorf("PaymentRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	err = executor.QueryRow(ctx, sql, args...).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("PaymentRepo - Create - executor.QueryRow: %w", err)
	}

	return nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id int64) (*entity.Payment, error) {
	return r.get(ctx, "GetByID", squirrel.Eq{paymentIDColumn: id}, false)
}

// GetByIDForUpdate row-locks the payment until the surrounding transaction ends.
func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, id int64) (*entity.Payment, error) {
	return r.get(ctx, "GetByIDForUpdate", squirrel.Eq{paymentIDColumn: id}, true)
}

func (r *PaymentRepo) GetByOrderIDForUpdate(ctx context.Context, orderID string) (*entity.Payment, error) {
	return r.get(ctx, "GetByOrderIDForUpdate", squirrel.Eq{paymentOrderIDColumn: orderID}, true)
}

// FindStale lists payments in statuses untouched since before, oldest first.
func (r *PaymentRepo) FindStale(ctx context.Context, statuses []entity.PaymentStatus, before time.Time, limit int) ([]*entity.Payment, error) {
	sql, args, err := r.Builder.
		Select(paymentColumns...).
		From(paymentsTable).
		Where(squirrel.And{
			squirrel.Eq{paymentStatusColumn: statuses},
			squirrel.Lt{paymentUpdatedAtColumn: before},
		}).
		OrderBy(paymentUpdatedAtColumn + " ASC").
		Limit(uint64(limit)). //nolint:gosec // limit comes from config
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("PaymentRepo - FindStale - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("PaymentRepo - FindStale - executor.Query: %w", err)
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0, limit)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("PaymentRepo - FindStale - rows.Scan: %w", err)
		}

		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PaymentRepo - FindStale - rows.Err: %w", err)
	}

	return payments, nil
}

// Update writes every mutable column. Amount and order id are never updated.
func (r *PaymentRepo) Update(ctx context.Context, p *entity.Payment) error {
	sql, args, err := r.Builder.
		Update(paymentsTable).
		Set(paymentKeyColumn, nullString(p.PaymentKey)).
		Set(paymentStatusColumn, p.Status).
		Set(paymentMethodColumn, nullString(p.Method)).
		Set(paymentPaidAtColumn, p.PaidAt).
		Set(paymentCancelReasonColumn, nullString(p.CancelReason)).
		Set(paymentCanceledAtColumn, p.CanceledAt).
		Set(paymentFailureCodeColumn, nullString(p.FailureCode)).
		Set(paymentFailureMessageColumn, nullString(p.FailureMessage)).
		Set(paymentUpdatedAtColumn, p.UpdatedAt).
		Where(squirrel.Eq{paymentIDColumn: p.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("PaymentRepo - Update - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("PaymentRepo - Update - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("PaymentRepo - Update: %w", errs.ErrRecordNotFound)
	}

	return nil
}

func (r *PaymentRepo) get(ctx context.Context, method string, where squirrel.Sqlizer, lock bool) (*entity.Payment, error) {
	q := r.Builder.
		Select(paymentColumns...).
		From(paymentsTable).
		Where(where)

	if lock {
		q = q.Suffix(forUpdate)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("PaymentRepo - %s - r.Builder.ToSql: %w", method, err)
	}

	executor := r.GetExecutor(ctx)

	p, err := scanPayment(executor.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("PaymentRepo - %s: %w", method, errs.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("PaymentRepo - %s - row.Scan: %w", method, err)
	}

	return p, nil
}

func scanPayment(row pgx.Row) (*entity.Payment, error) {
	var p entity.Payment

	err := row.Scan(
		&p.ID,
		&p.MemberID,
		&p.OrderID,
		&p.PaymentKey,
		&p.Amount,
		&p.Status,
		&p.Method,
		&p.PaidAt,
		&p.CancelReason,
		&p.CanceledAt,
		&p.FailureCode,
		&p.FailureMessage,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
