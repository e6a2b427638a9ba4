package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/google/uuid"
)

type OutboxRepo struct {
	s *Store
}

func NewOutboxRepo(s *Store) *OutboxRepo {
	return &OutboxRepo{s: s}
}

func (r *OutboxRepo) Create(_ context.Context, event *entity.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("outbox.create"); err != nil {
		return err
	}
	if r.hasEventID(event.EventID) {
		return fmt.Errorf("OutboxRepo - Create - event %s: %w", event.EventID, errs.ErrDuplicateEvent)
	}

	r.s.outboxSeq++
	event.ID = r.s.outboxSeq
	r.s.outbox[event.ID] = cloneEvent(*event)

	return nil
}

// Put stores a row as-is, for arranging test fixtures. A row without an event id
// gets a fresh one. Put panics on a duplicate event id, as Create would fail there.
func (r *OutboxRepo) Put(event entity.OutboxEvent) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if r.hasEventID(event.EventID) {
		panic(fmt.Errorf("OutboxRepo - Put - event %s: %w", event.EventID, errs.ErrDuplicateEvent))
	}

	if event.ID == 0 {
		r.s.outboxSeq++
		event.ID = r.s.outboxSeq
	} else if event.ID > r.s.outboxSeq {
		r.s.outboxSeq = event.ID
	}

	r.s.outbox[event.ID] = cloneEvent(event)

	return event.ID
}

// hasEventID mirrors the event_id unique index. Caller holds r.s.mu.
func (r *OutboxRepo) hasEventID(id uuid.UUID) bool {
	for _, e := range r.s.outbox {
		if e.EventID == id {
			return true
		}
	}

	return false
}

func (r *OutboxRepo) GetByID(_ context.Context, id int64) (*entity.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.outbox[id]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}

	c := cloneEvent(e)

	return &c, nil
}

func (r *OutboxRepo) All() []entity.OutboxEvent {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]entity.OutboxEvent, 0, len(r.s.outbox))
	for _, e := range r.s.outbox {
		out = append(out, cloneEvent(e))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func (r *OutboxRepo) FindRetryCandidates(_ context.Context, maxRetries int, staleBefore time.Time, limit int) ([]*entity.OutboxEvent, error) {
	if err := r.failure("outbox.find"); err != nil {
		return nil, err
	}

	return r.filter(limit, func(e entity.OutboxEvent) bool {
		return (e.Status == entity.OutboxSendFail && e.RetryCount < maxRetries) ||
			(e.Status == entity.OutboxInit && e.CreatedAt.Before(staleBefore))
	}), nil
}

func (r *OutboxRepo) FindExhausted(_ context.Context, maxRetries, limit int) ([]*entity.OutboxEvent, error) {
	return r.filter(limit, func(e entity.OutboxEvent) bool {
		return e.Status == entity.OutboxSendFail && e.RetryCount >= maxRetries
	}), nil
}

func (r *OutboxRepo) CountExhausted(ctx context.Context, maxRetries int) (int64, error) {
	rows, _ := r.FindExhausted(ctx, maxRetries, 0)

	return int64(len(rows)), nil
}

func (r *OutboxRepo) CountByStatus(_ context.Context) (map[entity.OutboxStatus]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	counts := map[entity.OutboxStatus]int64{
		entity.OutboxInit:      0,
		entity.OutboxPublished: 0,
		entity.OutboxSendFail:  0,
	}

	for _, e := range r.s.outbox {
		counts[e.Status]++
	}

	return counts, nil
}

func (r *OutboxRepo) FindOldPublished(_ context.Context, before time.Time, limit int) ([]*entity.OutboxEvent, error) {
	return r.filter(limit, func(e entity.OutboxEvent) bool {
		return e.Status == entity.OutboxPublished && e.PublishedAt != nil && e.PublishedAt.Before(before)
	}), nil
}

func (r *OutboxRepo) MarkPublished(_ context.Context, id int64, at time.Time) (bool, error) {
	return r.transition(id, "outbox.mark_published", func(e *entity.OutboxEvent) {
		e.Status = entity.OutboxPublished
		e.PublishedAt = &at
	})
}

func (r *OutboxRepo) MarkFailed(_ context.Context, id int64) (bool, error) {
	return r.transition(id, "outbox.mark_failed", func(e *entity.OutboxEvent) {
		e.Status = entity.OutboxSendFail
		e.RetryCount++
	})
}

func (r *OutboxRepo) DeleteByIDs(_ context.Context, ids []int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64

	for _, id := range ids {
		if e, ok := r.s.outbox[id]; ok && e.Status == entity.OutboxPublished {
			delete(r.s.outbox, id)
			n++
		}
	}

	return n, nil
}

func (r *OutboxRepo) DeleteOldPublished(ctx context.Context, before time.Time, limit int) (int64, error) {
	rows, _ := r.FindOldPublished(ctx, before, limit)

	ids := make([]int64, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ID)
	}

	return r.DeleteByIDs(ctx, ids)
}

func (r *OutboxRepo) transition(id int64, op string, apply func(e *entity.OutboxEvent)) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail(op); err != nil {
		return false, err
	}

	e, ok := r.s.outbox[id]
	if !ok || !slices.Contains(entity.Publishable(), e.Status) {
		return false, nil
	}

	apply(&e)
	r.s.outbox[id] = e

	return true, nil
}

func (r *OutboxRepo) filter(limit int, keep func(e entity.OutboxEvent) bool) []*entity.OutboxEvent {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*entity.OutboxEvent, 0)

	for _, e := range r.s.outbox {
		if keep(e) {
			c := cloneEvent(e)
			out = append(out, &c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

func (r *OutboxRepo) failure(op string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.fail(op)
}

func cloneEvent(e entity.OutboxEvent) entity.OutboxEvent {
	e.Payload = append([]byte(nil), e.Payload...)
	if e.PublishedAt != nil {
		at := *e.PublishedAt
		e.PublishedAt = &at
	}

	return e
}
