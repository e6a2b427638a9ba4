package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/metrics"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/executor"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	text := Render(entity.Alert{
		Severity: entity.SeverityCritical,
		Title:    "compensation failed",
		Fields:   map[string]string{"paymentId": "1", "amount": "100"},
	})

	assert.Equal(t, "[CRITICAL] compensation failed\namount: 100\npaymentId: 1", text)
}

func TestNotifier_PostsWebhook(t *testing.T) {
	t.Parallel()

	got := make(chan webhookBody, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b webhookBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&b))
		got <- b
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pool := executor.New("alert", logger.Nop(), executor.Workers(1))
	defer func() { _ = pool.Shutdown(context.Background()) }()

	n := New(srv.URL, pool, metrics.Nop(), logger.Nop())
	n.Notify(context.Background(), entity.Alert{Severity: entity.SeverityWarning, Title: "exhausted"})

	select {
	case b := <-got:
		assert.Equal(t, entity.SeverityWarning, b.Severity)
		assert.Equal(t, "[WARNING] exhausted", b.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestNotifier_WebhookFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pool := executor.New("alert", logger.Nop(), executor.Workers(1))

	n := New(srv.URL, pool, metrics.Nop(), logger.Nop())
	require.NotPanics(t, func() {
		n.Notify(context.Background(), entity.Alert{Severity: entity.SeverityCritical, Title: "x"})
	})

	require.NoError(t, pool.Shutdown(context.Background()))
}
