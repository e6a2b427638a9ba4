package outbox

import (
	"context"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
)

const (
	PathHybrid  = "hybrid"
	PathPolling = "polling"
)

type submitter interface {
	Submit(task func(ctx context.Context)) error
}

// deliverer sends one row and records the outcome through the status updater.
type deliverer struct {
	sender      infrastructure.EventsSender
	updater     usecase.OutboxStatusUpdater
	metrics     infrastructure.Recorder
	sendTimeout time.Duration

	logger logger.Interface
}

func (d *deliverer) deliver(ctx context.Context, path string, event entity.OutboxEvent) bool {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	err := d.sender.Send(sendCtx, event.Message())
	cancel()

	d.metrics.OutboxDelivered(path, err == nil)

	if err != nil {
		d.logger.Warn("Outbox - %s - deliver - event %s (row %d): %v", path, event.EventID, event.ID, err)

		if _, markErr := d.updater.MarkFailed(ctx, event.ID); markErr != nil {
			d.logger.Error(markErr, "Outbox - %s - deliver - d.updater.MarkFailed", path)
		}

		return false
	}

	if _, markErr := d.updater.MarkPublished(ctx, event.ID); markErr != nil {
		d.logger.Error(markErr, "Outbox - %s - deliver - d.updater.MarkPublished", path)

		return false
	}

	return true
}

// HybridPublisher delivers rows right after their transaction commits. It is
// an optimization; the polling relay picks up anything it misses.
type HybridPublisher struct {
	deliverer
	pool submitter
}

var _ Pusher = (*HybridPublisher)(nil)

func NewHybridPublisher(
	pool submitter,
	sender infrastructure.EventsSender,
	updater usecase.OutboxStatusUpdater,
	m infrastructure.Recorder,
	sendTimeout time.Duration,
	l logger.Interface,
) *HybridPublisher {
	return &HybridPublisher{
		deliverer: deliverer{
			sender:      sender,
			updater:     updater,
			metrics:     m,
			sendTimeout: sendTimeout,
			logger:      l,
		},
		pool: pool,
	}
}

// Push never blocks. A saturated pool drops the signal.
func (p *HybridPublisher) Push(signal PushSignal) {
	event := signal.Event

	err := p.pool.Submit(func(ctx context.Context) {
		p.deliver(ctx, PathHybrid, event)
	})
	if err != nil {
		p.logger.Warn("HybridPublisher - Push - row %d left for polling: %v", event.ID, err)
	}
}
