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
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// SQLSTATE unique_violation
	uniqueViolation = "23505"

	// Table
	outboxTable = "outbox"

	// Columns
	outboxIDColumn            = "id"
	outboxEventIDColumn       = "event_id"
	outboxEventTypeColumn     = "event_type"
	outboxAggregateTypeColumn = "aggregate_type"
	outboxAggregateIDColumn   = "aggregate_id"
	outboxPayloadColumn       = "payload"
	outboxStatusColumn        = "status"
	outboxRetryCountColumn    = "retry_count"
	outboxCreatedAtColumn     = "created_at"
	outboxPublishedAtColumn   = "published_at"
)

var outboxColumns = []string{
	outboxIDColumn,
	outboxEventIDColumn,
	outboxEventTypeColumn,
	outboxAggregateTypeColumn,
	outboxAggregateIDColumn,
	outboxPayloadColumn,
	outboxStatusColumn,
	outboxRetryCountColumn,
	outboxCreatedAtColumn,
	outboxPublishedAtColumn,
}

type OutboxRepo struct {
	*postgres.Postgres
}

func NewOutboxRepo(pg *postgres.Postgres) *OutboxRepo {
	return &OutboxRepo{pg}
}

// Create inserts the row and fills event.ID.
func (r *OutboxRepo) Create(ctx context.Context, event *entity.OutboxEvent) error {
	sql, args, err := r.Builder.
		Insert(outboxTable).
		Columns(
			outboxEventIDColumn,
			outboxEventTypeColumn,
			outboxAggregateTypeColumn,
			outboxAggregateIDColumn,
			outboxPayloadColumn,
			outboxStatusColumn,
			outboxRetryCountColumn,
			outboxCreatedAtColumn,
		).
		Values(
			event.EventID,
			event.EventType,
			event.AggregateType,
			event.AggregateID,
			event.Payload,
			event.Status,
			event.RetryCount,
			event.CreatedAt,
		).
		Suffix("RETURNING " + outboxIDColumn).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	err = executor.QueryRow(ctx, sql, args...).Scan(&event.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("OutboxRepo - Create - event %s: %w", event.EventID, errs.ErrDuplicateEvent)
		}

		return fmt.Errorf("OutboxRepo - Create - executor.QueryRow: %w", err)
	}

	return nil
}

func (r *OutboxRepo) GetByID(ctx context.Context, id int64) (*entity.OutboxEvent, error) {
	sql, args, err := r.Builder.
		Select(outboxColumns...).
		From(outboxTable).
		Where(squirrel.Eq{outboxIDColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("OutboxRepo - GetByID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	event, err := scanOutbox(executor.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("OutboxRepo - GetByID: %w", errs.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("OutboxRepo - GetByID - row.Scan: %w", err)
	}

	return event, nil
}

// FindRetryCandidates selects (SEND_FAIL with retries left) or (INIT older than
// staleBefore), earliest id first.
func (r *OutboxRepo) FindRetryCandidates(ctx context.Context, maxRetries int, staleBefore time.Time, limit int) ([]*entity.OutboxEvent, error) {
	return r.list(ctx, "FindRetryCandidates", retryCandidates(maxRetries, staleBefore), limit)
}

func (r *OutboxRepo) FindExhausted(ctx context.Context, maxRetries, limit int) ([]*entity.OutboxEvent, error) {
	return r.list(ctx, "FindExhausted", exhausted(maxRetries), limit)
}

func (r *OutboxRepo) FindOldPublished(ctx context.Context, before time.Time, limit int) ([]*entity.OutboxEvent, error) {
	return r.list(ctx, "FindOldPublished", oldPublished(before), limit)
}

// MarkPublished moves INIT or SEND_FAIL to PUBLISHED. False means another
// writer already moved the row.
func (r *OutboxRepo) MarkPublished(ctx context.Context, id int64, at time.Time) (bool, error) {
	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxStatusColumn, entity.OutboxPublished).
		Set(outboxPublishedAtColumn, at).
		Where(squirrel.And{
			squirrel.Eq{outboxIDColumn: id},
			squirrel.Eq{outboxStatusColumn: entity.Publishable()},
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("OutboxRepo - MarkPublished - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("OutboxRepo - MarkPublished - executor.Exec: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// MarkFailed moves INIT or SEND_FAIL to SEND_FAIL and bumps retry_count.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id int64) (bool, error) {
	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxStatusColumn, entity.OutboxSendFail).
		Set(outboxRetryCountColumn, squirrel.Expr(outboxRetryCountColumn+" + 1")).
		Where(squirrel.And{
			squirrel.Eq{outboxIDColumn: id},
			squirrel.Eq{outboxStatusColumn: entity.Publishable()},
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("OutboxRepo - MarkFailed - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("OutboxRepo - MarkFailed - executor.Exec: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *OutboxRepo) CountExhausted(ctx context.Context, maxRetries int) (int64, error) {
	sql, args, err := r.Builder.
		Select("COUNT(*)").
		From(outboxTable).
		Where(exhausted(maxRetries)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - CountExhausted - r.Builder.ToSql: %w", err)
	}

	var count int64

	executor := r.GetExecutor(ctx)

	err = executor.QueryRow(ctx, sql, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - CountExhausted - row.Scan: %w", err)
	}

	return count, nil
}

func (r *OutboxRepo) CountByStatus(ctx context.Context) (map[entity.OutboxStatus]int64, error) {
	sql, args, err := r.Builder.
		Select(outboxStatusColumn, "COUNT(*)").
		From(outboxTable).
		GroupBy(outboxStatusColumn).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("OutboxRepo - CountByStatus - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("OutboxRepo - CountByStatus - executor.Query: %w", err)
	}
	defer rows.Close()

	counts := map[entity.OutboxStatus]int64{
		entity.OutboxInit:      0,
		entity.OutboxPublished: 0,
		entity.OutboxSendFail:  0,
	}

	for rows.Next() {
		var (
			status entity.OutboxStatus
			count  int64
		)

		if err = rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("OutboxRepo - CountByStatus - rows.Scan: %w", err)
		}

		counts[status] = count
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("OutboxRepo - CountByStatus - rows.Err: %w", err)
	}

	return counts, nil
}

func (r *OutboxRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	sql, args, err := r.Builder.
		Delete(outboxTable).
		Where(squirrel.And{
			squirrel.Eq{outboxIDColumn: ids},
			squirrel.Eq{outboxStatusColumn: entity.OutboxPublished},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - DeleteByIDs - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - DeleteByIDs - executor.Exec: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteOldPublished removes at most limit PUBLISHED rows older than before.
func (r *OutboxRepo) DeleteOldPublished(ctx context.Context, before time.Time, limit int) (int64, error) {
	sub := squirrel.
		Select(outboxIDColumn).
		From(outboxTable).
		Where(oldPublished(before)).
		OrderBy(outboxIDColumn + " ASC").
		Limit(uint64(limit)) //nolint:gosec // limit comes from config

	sql, args, err := r.Builder.
		Delete(outboxTable).
		Where(squirrel.Expr(outboxIDColumn+" IN (?)", sub)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - DeleteOldPublished - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - DeleteOldPublished - executor.Exec: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *OutboxRepo) list(ctx context.Context, method string, where squirrel.Sqlizer, limit int) ([]*entity.OutboxEvent, error) {
	sql, args, err := r.Builder.
		Select(outboxColumns...).
		From(outboxTable).
		Where(where).
		OrderBy(outboxIDColumn + " ASC").
		Limit(uint64(limit)). //nolint:gosec // limit comes from config
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("OutboxRepo - %s - r.Builder.ToSql: %w", method, err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("OutboxRepo - %s - executor.Query: %w", method, err)
	}
	defer rows.Close()

	events := make([]*entity.OutboxEvent, 0, limit)
	for rows.Next() {
		event, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("OutboxRepo - %s - rows.Scan: %w", method, err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("OutboxRepo - %s - rows.Err: %w", method, err)
	}

	return events, nil
}

func retryCandidates(maxRetries int, staleBefore time.Time) squirrel.Sqlizer {
	return squirrel.Or{
		squirrel.And{
			squirrel.Eq{outboxStatusColumn: entity.OutboxSendFail},
			squirrel.Lt{outboxRetryCountColumn: maxRetries},
		},
		squirrel.And{
			squirrel.Eq{outboxStatusColumn: entity.OutboxInit},
			squirrel.Lt{outboxCreatedAtColumn: staleBefore},
		},
	}
}

func exhausted(maxRetries int) squirrel.Sqlizer {
	return squirrel.And{
		squirrel.Eq{outboxStatusColumn: entity.OutboxSendFail},
		squirrel.GtOrEq{outboxRetryCountColumn: maxRetries},
	}
}

func oldPublished(before time.Time) squirrel.Sqlizer {
	return squirrel.And{
		squirrel.Eq{outboxStatusColumn: entity.OutboxPublished},
		squirrel.Lt{outboxPublishedAtColumn: before},
	}
}

func scanOutbox(row pgx.Row) (*entity.OutboxEvent, error) {
	var event entity.OutboxEvent

	err := row.Scan(
		&event.ID,
		&event.EventID,
		&event.EventType,
		&event.AggregateType,
		&event.AggregateID,
		&event.Payload,
		&event.Status,
		&event.RetryCount,
		&event.CreatedAt,
		&event.PublishedAt,
	)
	if err != nil {
		return nil, err
	}

	return &event, nil
}
