package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return New(srv.URL, "test_sk", logger.Nop(), opts...)
}

func TestClient_Confirm(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, confirmPath, r.URL.Path)

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "test_sk", user)

		var req confirmRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ORD-1", req.OrderID)
		assert.True(t, req.Amount.Equal(decimal.NewFromInt(5000)))

		_, _ = w.Write([]byte(`{"paymentKey":"pk_1","status":"DONE","method":"CARD","approvedAt":"2025-01-01T10:00:00+09:00"}`))
	})

	conf, err := c.Confirm(context.Background(), "pk_1", "ORD-1", decimal.NewFromInt(5000))
	require.NoError(t, err)

	assert.Equal(t, "pk_1", conf.PaymentKey)
	assert.Equal(t, "CARD", conf.Method)
	assert.Equal(t, 1, conf.ApprovedAt.UTC().Hour())
}

func TestClient_Cancel(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pk_1/cancel", r.URL.Path)

		_, _ = w.Write([]byte(`{"status":"CANCELED","totalAmount":5000,"cancels":[{"cancelAmount":5000,"canceledAt":"2025-01-01T10:00:00Z"}]}`))
	})

	res, err := c.Cancel(context.Background(), "pk_1", "auto-refund")
	require.NoError(t, err)

	assert.True(t, res.Amount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), res.CanceledAt)
}

func TestClient_InquireStatusMapping(t *testing.T) {
	t.Parallel()

	tests := map[string]entity.InquiryStatus{
		"DONE":                entity.InquiryDone,
		"CANCELED":            entity.InquiryCanceledOrFailed,
		"PARTIAL_CANCELED":    entity.InquiryCanceledOrFailed,
		"ABORTED":             entity.InquiryCanceledOrFailed,
		"EXPIRED":             entity.InquiryCanceledOrFailed,
		"READY":               entity.InquiryInProgress,
		"IN_PROGRESS":         entity.InquiryInProgress,
		"WAITING_FOR_DEPOSIT": entity.InquiryInProgress,
	}

	for status, want := range tests {
		assert.Equal(t, want, inquiryStatus(status), status)
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/orders/ORD-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"paymentKey":"pk_9","status":"DONE","totalAmount":1000}`))
	})

	inq, err := c.Inquire(context.Background(), "ORD-9")
	require.NoError(t, err)
	assert.Equal(t, entity.InquiryDone, inq.Status)
	assert.Equal(t, "pk_9", inq.PaymentKey)
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		target    error
	}{
		{"server error", http.StatusServiceUnavailable, `{"code":"PROVIDER_ERROR"}`, true, errs.ErrGatewayUnavailable},
		{"too many requests", http.StatusTooManyRequests, `{}`, true, errs.ErrGatewayUnavailable},
		{"not found", http.StatusNotFound, `{"code":"NOT_FOUND_PAYMENT","message":"none"}`, false, errs.ErrGatewayNotFound},
		{"already canceled", http.StatusBadRequest, `{"code":"ALREADY_CANCELED_PAYMENT"}`, false, errs.ErrGatewayAlreadyCanceled},
		{"rejected", http.StatusBadRequest, `{"code":"INVALID_CARD"}`, false, errs.ErrGatewayRejected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := c.Inquire(context.Background(), "ORD-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.target)
			assert.Equal(t, tc.retryable, IsRetryable(err))
		})
	}
}

func TestClient_TimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}, Timeout(10*time.Millisecond))

	_, err := c.Inquire(context.Background(), "ORD-1")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestClient_BreakerOpensOnRetryableOnly(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, Breaker(2, time.Minute))

	for range 2 {
		_, err := c.Inquire(context.Background(), "ORD-1")
		require.True(t, IsRetryable(err))
	}

	_, err := c.Inquire(context.Background(), "ORD-1")
	require.True(t, IsRetryable(err))
	assert.Equal(t, int32(2), calls.Load())

	rejecting := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, Breaker(1, time.Minute))

	for range 3 {
		_, err = rejecting.Inquire(context.Background(), "ORD-1")
		require.ErrorIs(t, err, errs.ErrGatewayRejected)
	}

	assert.Equal(t, int32(5), calls.Load())
}
