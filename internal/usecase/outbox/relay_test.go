package outbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHybridFailureThenPollingSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.sender.failWith(errBrokerTimeout)

	err := f.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return f.capturer.Capture(ctx, completed(9))
	})
	require.NoError(t, err)

	row := f.outbox.All()[0]
	assert.Equal(t, entity.OutboxSendFail, row.Status)
	assert.Equal(t, 1, row.RetryCount)
	assert.Nil(t, row.PublishedAt)

	f.sender.failWith(nil)
	f.clock.Advance(time.Second)

	n, err := f.relay.PublishPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.get(t, row.ID)
	assert.Equal(t, entity.OutboxPublished, got.Status)
	require.NotNil(t, got.PublishedAt)
	assert.Equal(t, f.clock.Now().UTC(), *got.PublishedAt)
}

func TestPublishPending_StaleInitOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	stale := f.row(entity.OutboxInit, 0, 10*time.Minute)
	fresh := f.row(entity.OutboxInit, 0, 2*time.Minute)

	n, err := f.relay.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, entity.OutboxPublished, f.get(t, stale).Status)
	assert.Equal(t, entity.OutboxInit, f.get(t, fresh).Status)
}

func TestPublishPending_OrderAndRetryLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	exhausted := f.row(entity.OutboxSendFail, 3, time.Hour)
	first := f.row(entity.OutboxSendFail, 1, time.Minute)
	second := f.row(entity.OutboxInit, 0, time.Hour)
	f.row(entity.OutboxPublished, 0, time.Hour)

	_, err := f.relay.PublishPending(context.Background())
	require.NoError(t, err)

	msgs := f.sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, f.get(t, first).EventID.String(), msgs[0].Headers[entity.HeaderEventID])
	assert.Equal(t, f.get(t, second).EventID.String(), msgs[1].Headers[entity.HeaderEventID])

	assert.Equal(t, entity.OutboxSendFail, f.get(t, exhausted).Status)
	assert.Equal(t, 3, f.get(t, exhausted).RetryCount)
}

func TestPublishPending_OneFailureDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	a := f.row(entity.OutboxInit, 0, time.Hour)
	b := f.row(entity.OutboxInit, 0, time.Hour)
	c := f.row(entity.OutboxInit, 0, time.Hour)
	f.sender.failOn[f.get(t, b).EventID.String()] = true

	n, err := f.relay.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, entity.OutboxPublished, f.get(t, a).Status)
	assert.Equal(t, entity.OutboxSendFail, f.get(t, b).Status)
	assert.Equal(t, 1, f.get(t, b).RetryCount)
	assert.Equal(t, entity.OutboxPublished, f.get(t, c).Status)
	// one tx per status write
	assert.Equal(t, 3, f.store.Transactions())
}

func TestStatusUpdater_ConditionalTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	id := f.row(entity.OutboxInit, 0, 0)

	ok, err := f.updater.MarkPublished(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.updater.MarkFailed(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.updater.MarkPublished(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	got := f.get(t, id)
	assert.Equal(t, entity.OutboxPublished, got.Status)
	assert.Equal(t, 0, got.RetryCount)

	ok, err = f.updater.MarkPublished(ctx, 404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusUpdater_OpensOwnTransaction(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.row(entity.OutboxInit, 0, 0)

	err := f.tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		_, err := f.updater.MarkFailed(ctx, id)

		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 2, f.store.Transactions())
	assert.Equal(t, entity.OutboxSendFail, f.get(t, id).Status)
}

func TestHybridPublisher_SaturatedPoolLeavesRowForPolling(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.pool.saturated = true

	err := f.tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		return f.capturer.Capture(ctx, completed(2))
	})
	require.NoError(t, err)

	row := f.outbox.All()[0]
	assert.Equal(t, entity.OutboxInit, row.Status)

	f.clock.Advance(6 * time.Minute)

	n, err := f.relay.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, entity.OutboxPublished, f.get(t, row.ID).Status)
}

func TestAlertExhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.relay.AlertExhausted(ctx))
	assert.Empty(t, f.alerts.alerts)

	a := f.row(entity.OutboxSendFail, 3, time.Hour)
	b := f.row(entity.OutboxSendFail, 5, time.Hour)
	f.row(entity.OutboxSendFail, 2, time.Hour)

	require.NoError(t, f.relay.AlertExhausted(ctx))
	require.Len(t, f.alerts.alerts, 1)

	alert := f.alerts.alerts[0]
	assert.Equal(t, entity.SeverityWarning, alert.Severity)
	assert.Equal(t, "2", alert.Fields["count"])
	assert.Equal(t, fmt.Sprintf("%d,%d", a, b), alert.Fields["ids"])
}

func TestCleanupOutbox_ArchivesThenDeletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	old := f.clock.Now().Add(-48 * time.Hour)
	recent := f.clock.Now().Add(-time.Hour)

	oldID := f.outbox.Put(entity.OutboxEvent{Status: entity.OutboxPublished, PublishedAt: &old, CreatedAt: old})
	recentID := f.outbox.Put(entity.OutboxEvent{Status: entity.OutboxPublished, PublishedAt: &recent, CreatedAt: recent})
	pendingID := f.row(entity.OutboxSendFail, 1, 72*time.Hour)

	f.archive.FailWith(errors.New("s3 down"))

	_, err := f.relay.CleanupOutbox(ctx)
	require.Error(t, err)
	assert.Len(t, f.outbox.All(), 3)

	f.archive.FailWith(nil)

	n, err := f.relay.CleanupOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	objects := f.archive.Objects()
	require.Contains(t, objects, "outbox/2026/10/19/000001-000001.jsonl")
	assert.Equal(t, oldID, objects["outbox/2026/10/19/000001-000001.jsonl"][0].ID)

	_, err = f.outbox.GetByID(ctx, oldID)
	require.Error(t, err)
	assert.Equal(t, entity.OutboxPublished, f.get(t, recentID).Status)
	assert.Equal(t, entity.OutboxSendFail, f.get(t, pendingID).Status)
}

func TestCleanupOutbox_WithoutArchive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.relay.archive = nil

	old := f.clock.Now().Add(-48 * time.Hour)
	f.outbox.Put(entity.OutboxEvent{Status: entity.OutboxPublished, PublishedAt: &old, CreatedAt: old})

	n, err := f.relay.CleanupOutbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, f.outbox.All())
}

func TestStats(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.row(entity.OutboxInit, 0, 0)
	f.row(entity.OutboxSendFail, 1, 0)
	f.row(entity.OutboxSendFail, 3, 0)

	stats, err := f.relay.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Counts[entity.OutboxInit])
	assert.Equal(t, int64(2), stats.Counts[entity.OutboxSendFail])
	assert.Equal(t, int64(0), stats.Counts[entity.OutboxPublished])
	assert.Equal(t, int64(1), stats.Exhausted)
}
