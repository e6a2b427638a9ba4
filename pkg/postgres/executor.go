package postgres

import (
	"context"
	"fmt"

	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type txKey struct{}

// txState is the transaction bound to a context together with the hooks
// that must run once it commits.
type txState struct {
	tx    pgx.Tx
	hooks []func()
}

type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (p *Postgres) GetExecutor(ctx context.Context) Executor {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return st.tx
	}
	return p.Pool
}

// InTransaction reports whether ctx carries an open transaction.
func (p *Postgres) InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}

// AfterCommit registers hook to run after the transaction in ctx commits.
// Hooks are dropped on rollback.
func (p *Postgres) AfterCommit(ctx context.Context, hook func()) error {
	st, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return errs.ErrNoTransaction
	}

	st.hooks = append(st.hooks, hook)

	return nil
}

// WithinTransaction joins the transaction already in ctx, or opens one:
// 1) Begin Tx;
// 2) Updates ctx -> context.WithValue(Tx) && func call;
// 3) err = Tx.Rollback, ok = Tx.Commit and run after-commit hooks.
func (p *Postgres) WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	if p.InTransaction(ctx) {
		return f(ctx)
	}

	return p.run(ctx, f)
}

// WithinNewTransaction always opens a fresh transaction, ignoring the one in ctx.
func (p *Postgres) WithinNewTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	return p.run(ctx, f)
}

func (p *Postgres) run(ctx context.Context, f func(ctx context.Context) error) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("Postgres - WithinTransaction - p.Pool.Begin: %w", err)
	}

	st := &txState{tx: tx}

	err = f(context.WithValue(ctx, txKey{}, st))
	if err != nil {
		_ = tx.Rollback(ctx)

		return fmt.Errorf("Postgres - WithinTransaction: %w", err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("Postgres - WithinTransaction - tx.Commit: %w", err)
	}

	RunHooks(p.logger, st.hooks)

	return nil
}

// RunHooks calls every hook, recovering panics so one hook cannot stop the rest.
func RunHooks(l logger.Interface, hooks []func()) {
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.Error(fmt.Errorf("Postgres - RunHooks - after-commit hook panic: %v", r))
				}
			}()

			hook()
		}()
	}
}
