package outbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/andreyxaxa/Ledger-Outbox/internal/repo"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/jonboulle/clockwork"
)

type RelayConfig struct {
	BatchSize    int
	MaxRetries   int
	StaleAfter   time.Duration
	Retention    time.Duration
	CleanupBatch int
	AlertLimit   int
	SendTimeout  time.Duration
}

type OutboxUseCase struct {
	deliverer
	outbox  repo.OutboxRepo
	archive repo.OutboxArchive
	alerter infrastructure.Alerter
	clock   clockwork.Clock
	cfg     RelayConfig
}

var _ usecase.OutboxUseCase = (*OutboxUseCase)(nil)

// New returns the polling side of the outbox. archive may be nil, then
// published rows are deleted without a copy.
func New(
	outbox repo.OutboxRepo,
	sender infrastructure.EventsSender,
	updater usecase.OutboxStatusUpdater,
	archive repo.OutboxArchive,
	alerter infrastructure.Alerter,
	m infrastructure.Recorder,
	clock clockwork.Clock,
	cfg RelayConfig,
	l logger.Interface,
) *OutboxUseCase {
	return &OutboxUseCase{
		deliverer: deliverer{
			sender:      sender,
			updater:     updater,
			metrics:     m,
			sendTimeout: cfg.SendTimeout,
			logger:      l,
		},
		outbox:  outbox,
		archive: archive,
		alerter: alerter,
		clock:   clock,
		cfg:     cfg,
	}
}

// PublishPending delivers one batch of retry candidates in id order and
// returns how many were published.
func (uc *OutboxUseCase) PublishPending(ctx context.Context) (int, error) {
	staleBefore := uc.clock.Now().UTC().Add(-uc.cfg.StaleAfter)

	events, err := uc.outbox.FindRetryCandidates(ctx, uc.cfg.MaxRetries, staleBefore, uc.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("OutboxUseCase - PublishPending - uc.outbox.FindRetryCandidates: %w", err)
	}

	published := 0

	for _, event := range events {
		if ctx.Err() != nil {
			break
		}

		if uc.deliver(ctx, PathPolling, *event) {
			published++
		}
	}

	if len(events) > 0 {
		uc.logger.Info("OutboxUseCase - PublishPending - published %d of %d", published, len(events))
	}

	return published, nil
}

// AlertExhausted raises a warning for rows that ran out of retries.
func (uc *OutboxUseCase) AlertExhausted(ctx context.Context) error {
	total, err := uc.outbox.CountExhausted(ctx, uc.cfg.MaxRetries)
	if err != nil {
		return fmt.Errorf("OutboxUseCase - AlertExhausted - uc.outbox.CountExhausted: %w", err)
	}

	uc.metrics.OutboxExhausted(total)

	if total == 0 {
		return nil
	}

	events, err := uc.outbox.FindExhausted(ctx, uc.cfg.MaxRetries, uc.cfg.AlertLimit)
	if err != nil {
		return fmt.Errorf("OutboxUseCase - AlertExhausted - uc.outbox.FindExhausted: %w", err)
	}

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, strconv.FormatInt(e.ID, 10))
	}

	uc.alerter.Notify(ctx, entity.Alert{
		Severity: entity.SeverityWarning,
		Title:    "Outbox rows exhausted their retries",
		Fields: map[string]string{
			"count":      strconv.FormatInt(total, 10),
			"maxRetries": strconv.Itoa(uc.cfg.MaxRetries),
			"ids":        strings.Join(ids, ","),
		},
	})

	return nil
}

// CleanupOutbox removes PUBLISHED rows older than the retention, archiving
// them first when an archive is configured.
func (uc *OutboxUseCase) CleanupOutbox(ctx context.Context) (int64, error) {
	before := uc.clock.Now().UTC().Add(-uc.cfg.Retention)

	if uc.archive == nil {
		n, err := uc.outbox.DeleteOldPublished(ctx, before, uc.cfg.CleanupBatch)
		if err != nil {
			return 0, fmt.Errorf("OutboxUseCase - CleanupOutbox - uc.outbox.DeleteOldPublished: %w", err)
		}

		return n, nil
	}

	events, err := uc.outbox.FindOldPublished(ctx, before, uc.cfg.CleanupBatch)
	if err != nil {
		return 0, fmt.Errorf("OutboxUseCase - CleanupOutbox - uc.outbox.FindOldPublished: %w", err)
	}

	if len(events) == 0 {
		return 0, nil
	}

	// rows stay in place when the archive write fails
	if err = uc.archive.Store(ctx, ArchiveKey(uc.clock.Now().UTC(), events), events); err != nil {
		return 0, fmt.Errorf("OutboxUseCase - CleanupOutbox - uc.archive.Store: %w", err)
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}

	n, err := uc.outbox.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("OutboxUseCase - CleanupOutbox - uc.outbox.DeleteByIDs: %w", err)
	}

	return n, nil
}

func (uc *OutboxUseCase) Stats(ctx context.Context) (entity.OutboxStats, error) {
	counts, err := uc.outbox.CountByStatus(ctx)
	if err != nil {
		return entity.OutboxStats{}, fmt.Errorf("OutboxUseCase - Stats - uc.outbox.CountByStatus: %w", err)
	}

	exhausted, err := uc.outbox.CountExhausted(ctx, uc.cfg.MaxRetries)
	if err != nil {
		return entity.OutboxStats{}, fmt.Errorf("OutboxUseCase - Stats - uc.outbox.CountExhausted: %w", err)
	}

	for status, n := range counts {
		uc.metrics.OutboxBacklog(status, n)
	}

	uc.metrics.OutboxExhausted(exhausted)

	return entity.OutboxStats{Counts: counts, Exhausted: exhausted}, nil
}

func (uc *OutboxUseCase) Exhausted(ctx context.Context, limit int) ([]*entity.OutboxEvent, error) {
	events, err := uc.outbox.FindExhausted(ctx, uc.cfg.MaxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("OutboxUseCase - Exhausted - uc.outbox.FindExhausted: %w", err)
	}

	return events, nil
}

// ArchiveKey names the archive object for a batch, e.g.
// outbox/2026/10/19/000041-000057.jsonl.
func ArchiveKey(at time.Time, events []*entity.OutboxEvent) string {
	first, last := events[0].ID, events[len(events)-1].ID

	return fmt.Sprintf("outbox/%s/%06d-%06d.jsonl", at.Format("2006/01/02"), first, last)
}
