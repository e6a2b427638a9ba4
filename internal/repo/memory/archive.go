package memory

import (
	"context"
	"sync"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
)

type OutboxArchive struct {
	mu      sync.Mutex
	objects map[string][]*entity.OutboxEvent
	err     error
}

func NewOutboxArchive() *OutboxArchive {
	return &OutboxArchive{objects: make(map[string][]*entity.OutboxEvent)}
}

func (a *OutboxArchive) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.err = err
}

func (a *OutboxArchive) Store(_ context.Context, key string, events []*entity.OutboxEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return a.err
	}

	a.objects[key] = events

	return nil
}

func (a *OutboxArchive) Objects() map[string][]*entity.OutboxEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string][]*entity.OutboxEvent, len(a.objects))
	for k, v := range a.objects {
		out[k] = v
	}

	return out
}
