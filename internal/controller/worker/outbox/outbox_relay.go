package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/jonboulle/clockwork"
)

// OutboxRelay runs the polling side of the outbox. Every loop waits its full
// interval after a run finishes, so runs of one loop never overlap.
type OutboxRelay struct {
	ob     usecase.OutboxUseCase
	clock  clockwork.Clock
	logger logger.Interface

	pollInterval        time.Duration
	alertInterval       time.Duration
	cleanupInterval     time.Duration
	processBatchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func New(
	ob usecase.OutboxUseCase,
	clock clockwork.Clock,
	l logger.Interface,
	pollInterval time.Duration,
	alertInterval time.Duration,
	cleanupInterval time.Duration,
	processBatchTimeout time.Duration,
) *OutboxRelay {
	return &OutboxRelay{
		ob:                  ob,
		clock:               clock,
		logger:              l,
		pollInterval:        pollInterval,
		alertInterval:       alertInterval,
		cleanupInterval:     cleanupInterval,
		processBatchTimeout: processBatchTimeout,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("OutboxRelay - Start - worker already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	// 1. delivery sweep
	r.worker(r.pollInterval, func() {
		batchCtx, batchCancel := context.WithTimeout(r.ctx, r.processBatchTimeout)
		defer batchCancel()

		if _, err := r.ob.PublishPending(batchCtx); err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.ob.PublishPending")
		}
	})

	// 2. backlog gauges and exhausted rows alert
	r.worker(r.alertInterval, func() {
		if _, err := r.ob.Stats(r.ctx); err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.ob.Stats")
		}

		if err := r.ob.AlertExhausted(r.ctx); err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.ob.AlertExhausted")
		}
	})

	// 3. retention sweep of published rows
	r.worker(r.cleanupInterval, func() {
		n, err := r.ob.CleanupOutbox(r.ctx)
		if err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.ob.CleanupOutbox")

			return
		}

		if n > 0 {
			r.logger.Info("OutboxRelay - cleanup - removed %d published rows", n)
		}
	})

	return nil
}

func (r *OutboxRelay) worker(interval time.Duration, task func()) {
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		timer := r.clock.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-timer.Chan():
				r.run(task)
				timer.Reset(interval)
			}
		}
	}()
}

func (r *OutboxRelay) run(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(fmt.Errorf("panic: %v", rec), "OutboxRelay - worker")
		}
	}()

	task()
}

func (r *OutboxRelay) Shutdown(ctx context.Context) error {
	if !r.started.Load() {
		return nil
	}

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("OutboxRelay - Shutdown: %w", ctx.Err())
	}
}
