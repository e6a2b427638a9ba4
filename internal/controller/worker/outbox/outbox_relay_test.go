package outbox

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingOutbox struct {
	published atomic.Int32
	alerted   atomic.Int32
	cleaned   atomic.Int32
	stats     atomic.Int32
}

func (c *countingOutbox) PublishPending(context.Context) (int, error) {
	c.published.Add(1)
	return 0, nil
}

func (c *countingOutbox) AlertExhausted(context.Context) error {
	c.alerted.Add(1)
	return nil
}

func (c *countingOutbox) CleanupOutbox(context.Context) (int64, error) {
	c.cleaned.Add(1)
	panic("cleanup exploded")
}

func (c *countingOutbox) Stats(context.Context) (entity.OutboxStats, error) {
	c.stats.Add(1)
	return entity.OutboxStats{}, nil
}

func (c *countingOutbox) Exhausted(context.Context, int) ([]*entity.OutboxEvent, error) {
	return nil, nil
}

func TestOutboxRelay_RunsLoopsOnTheirIntervals(t *testing.T) {
	t.Parallel()

	ob := &countingOutbox{}
	clock := clockwork.NewFakeClock()
	r := New(ob, clock, logger.Nop(), time.Second, time.Minute, time.Hour, time.Second)

	require.NoError(t, r.Start(context.Background()))
	require.Error(t, r.Start(context.Background()))

	require.NoError(t, clock.BlockUntilContext(context.Background(), 3))

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return ob.published.Load() == 1 }, time.Second, 5*time.Millisecond)

	// fixed delay: the poll timer is re-armed after the run
	require.NoError(t, clock.BlockUntilContext(context.Background(), 3))

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return ob.alerted.Load() == 1 && ob.stats.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(context.Background(), 3))

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return ob.cleaned.Load() == 1 }, time.Second, 5*time.Millisecond)

	// a panicking task does not kill its loop
	require.NoError(t, clock.BlockUntilContext(context.Background(), 3))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, r.Shutdown(ctx))
	assert.GreaterOrEqual(t, ob.published.Load(), int32(1))
}
