package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/controller/restapi/v1/response"
	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/metrics"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOutbox struct {
	stats     entity.OutboxStats
	exhausted []*entity.OutboxEvent
	err       error
	limit     int
}

func (s *stubOutbox) PublishPending(context.Context) (int, error) { return 0, nil }
func (s *stubOutbox) AlertExhausted(context.Context) error        { return nil }
func (s *stubOutbox) CleanupOutbox(context.Context) (int64, error) {
	return 0, nil
}

func (s *stubOutbox) Stats(context.Context) (entity.OutboxStats, error) {
	return s.stats, s.err
}

func (s *stubOutbox) Exhausted(_ context.Context, limit int) ([]*entity.OutboxEvent, error) {
	s.limit = limit

	return s.exhausted, s.err
}

func newApp(ob *stubOutbox) *fiber.App {
	app := fiber.New()
	NewRouter(app, ob, metrics.New().Registry, logger.Nop())

	return app
}

func get(t *testing.T, app *fiber.App, path string) (int, []byte) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, b
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	code, body := get(t, newApp(&stubOutbox{}), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	code, body := get(t, newApp(&stubOutbox{}), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestOutboxStats(t *testing.T) {
	t.Parallel()

	ob := &stubOutbox{stats: entity.OutboxStats{
		Counts: map[entity.OutboxStatus]int64{
			entity.OutboxInit:      4,
			entity.OutboxPublished: 100,
			entity.OutboxSendFail:  3,
		},
		Exhausted: 1,
	}}

	code, body := get(t, newApp(ob), "/v1/outbox/stats")
	require.Equal(t, http.StatusOK, code)

	var stats response.OutboxStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, response.OutboxStats{Init: 4, Published: 100, SendFail: 3, Exhausted: 1}, stats)
}

func TestOutboxStats_Error(t *testing.T) {
	t.Parallel()

	code, body := get(t, newApp(&stubOutbox{err: errors.New("db down")}), "/v1/outbox/stats")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotContains(t, string(body), "db down")
}

func TestExhaustedEvents(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	ob := &stubOutbox{exhausted: []*entity.OutboxEvent{{
		ID:            7,
		EventID:       id,
		EventType:     entity.EventPaymentCanceled,
		AggregateType: entity.AggregatePayment,
		AggregateID:   "12",
		RetryCount:    5,
		CreatedAt:     time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}}}
	app := newApp(ob)

	code, body := get(t, app, "/v1/outbox/exhausted?limit=10")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10, ob.limit)

	var resp response.ExhaustedEvents
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, id.String(), resp.Events[0].EventID)
	assert.Equal(t, "PAYMENT_CANCELED", resp.Events[0].EventType)
	assert.Equal(t, "2026-10-19T12:00:00Z", resp.Events[0].CreatedAt)

	code, _ = get(t, app, "/v1/outbox/exhausted")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 100, ob.limit)

	code, _ = get(t, app, "/v1/outbox/exhausted?limit=0")
	assert.Equal(t, http.StatusBadRequest, code)
}
