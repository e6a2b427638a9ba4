package outbox

import (
	"context"
	"fmt"

	"github.com/andreyxaxa/Ledger-Outbox/internal/repo"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/jonboulle/clockwork"
)

// StatusUpdater moves a row out of INIT/SEND_FAIL. Every call commits on its
// own, whatever transaction the context carries.
type StatusUpdater struct {
	outbox     repo.OutboxRepo
	transactor repo.Transactor
	clock      clockwork.Clock

	logger logger.Interface
}

var _ usecase.OutboxStatusUpdater = (*StatusUpdater)(nil)

func NewStatusUpdater(outbox repo.OutboxRepo, transactor repo.Transactor, clock clockwork.Clock, l logger.Interface) *StatusUpdater {
	return &StatusUpdater{
		outbox:     outbox,
		transactor: transactor,
		clock:      clock,
		logger:     l,
	}
}

func (u *StatusUpdater) MarkPublished(ctx context.Context, id int64) (bool, error) {
	var updated bool

	err := u.transactor.WithinNewTransaction(ctx, func(ctx context.Context) error {
		var err error

		updated, err = u.outbox.MarkPublished(ctx, id, u.clock.Now().UTC())

		return err
	})
	if err != nil {
		return false, fmt.Errorf("StatusUpdater - MarkPublished - u.outbox.MarkPublished: %w", err)
	}

	if !updated {
		u.logger.Debug("StatusUpdater - MarkPublished - outbox row %d already final, skipped", id)
	}

	return updated, nil
}

func (u *StatusUpdater) MarkFailed(ctx context.Context, id int64) (bool, error) {
	var updated bool

	err := u.transactor.WithinNewTransaction(ctx, func(ctx context.Context) error {
		var err error

		updated, err = u.outbox.MarkFailed(ctx, id)

		return err
	})
	if err != nil {
		return false, fmt.Errorf("StatusUpdater - MarkFailed - u.outbox.MarkFailed: %w", err)
	}

	if !updated {
		u.logger.Debug("StatusUpdater - MarkFailed - outbox row %d already final, skipped", id)
	}

	return updated, nil
}
