package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/repo"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// PushSignal asks the hybrid publisher to deliver a freshly committed row.
type PushSignal struct {
	Event entity.OutboxEvent
}

type Pusher interface {
	Push(signal PushSignal)
}

type Capturer struct {
	outbox     repo.OutboxRepo
	transactor repo.Transactor
	pusher     Pusher
	hybrid     map[entity.EventType]struct{}
	clock      clockwork.Clock

	logger logger.Interface
}

var _ usecase.EventCapturer = (*Capturer)(nil)

// NewCapturer returns a capturer. Events whose type is in hybridTypes are
// also pushed after commit; pusher may be nil to disable that path.
func NewCapturer(
	outbox repo.OutboxRepo,
	transactor repo.Transactor,
	pusher Pusher,
	hybridTypes []entity.EventType,
	clock clockwork.Clock,
	l logger.Interface,
) *Capturer {
	hybrid := make(map[entity.EventType]struct{}, len(hybridTypes))
	for _, t := range hybridTypes {
		hybrid[t] = struct{}{}
	}

	return &Capturer{
		outbox:     outbox,
		transactor: transactor,
		pusher:     pusher,
		hybrid:     hybrid,
		clock:      clock,
		logger:     l,
	}
}

// Capture inserts one INIT row inside the caller's transaction. Any error
// must roll that transaction back.
func (c *Capturer) Capture(ctx context.Context, event entity.DomainEvent) error {
	if !c.transactor.InTransaction(ctx) {
		return fmt.Errorf("Capturer - Capture - %s: %w", event.EventType(), errs.ErrNoTransaction)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("Capturer - Capture - json.Marshal: %w: %w", errs.ErrSerialization, err)
	}

	row := &entity.OutboxEvent{
		EventID:       uuid.New(),
		EventType:     event.EventType(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		Payload:       payload,
		Status:        entity.OutboxInit,
		CreatedAt:     c.clock.Now().UTC(),
	}

	if err = c.outbox.Create(ctx, row); err != nil {
		return fmt.Errorf("Capturer - Capture - c.outbox.Create: %w", err)
	}

	if _, ok := c.hybrid[row.EventType]; !ok || c.pusher == nil {
		return nil
	}

	signal := PushSignal{Event: *row}

	err = c.transactor.AfterCommit(ctx, func() {
		c.pusher.Push(signal)
	})
	if err != nil {
		return fmt.Errorf("Capturer - Capture - c.transactor.AfterCommit: %w", err)
	}

	return nil
}
