// Package gateway is the HTTP adapter for the external payment gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

const (
	_defaultTimeout         = 10 * time.Second
	_defaultBreakerFailures = 5
	_defaultBreakerTimeout  = 30 * time.Second

	confirmPath = "/v1/payments/confirm"
	cancelPath  = "/v1/payments/%s/cancel"
	inquirePath = "/v1/payments/orders/%s"
)

type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client

	breakerFailures uint32
	breakerTimeout  time.Duration
	cb              *gobreaker.CircuitBreaker

	logger logger.Interface
}

func New(baseURL, secretKey string, l logger.Interface, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		secretKey:       secretKey,
		http:            &http.Client{Timeout: _defaultTimeout},
		breakerFailures: _defaultBreakerFailures,
		breakerTimeout:  _defaultBreakerTimeout,
		logger:          l,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.breakerFailures
		},
		// business rejections say nothing about gateway health
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("gateway - Client - circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return c
}

type confirmRequest struct {
	PaymentKey string          `json:"paymentKey"`
	OrderID    string          `json:"orderId"`
	Amount     decimal.Decimal `json:"amount"`
}

type cancelRequest struct {
	CancelReason string `json:"cancelReason"`
}

type paymentResponse struct {
	PaymentKey  string          `json:"paymentKey"`
	OrderID     string          `json:"orderId"`
	Status      string          `json:"status"`
	Method      string          `json:"method"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	ApprovedAt  *time.Time      `json:"approvedAt"`
	Cancels     []struct {
		CancelAmount decimal.Decimal `json:"cancelAmount"`
		CanceledAt   time.Time       `json:"canceledAt"`
	} `json:"cancels"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) Confirm(ctx context.Context, paymentKey, orderID string, amount decimal.Decimal) (entity.Confirmation, error) {
	var resp paymentResponse

	err := c.call(ctx, "confirm", http.MethodPost, confirmPath, confirmRequest{
		PaymentKey: paymentKey,
		OrderID:    orderID,
		Amount:     amount,
	}, &resp)
	if err != nil {
		return entity.Confirmation{}, err
	}

	conf := entity.Confirmation{
		PaymentKey: resp.PaymentKey,
		Method:     resp.Method,
	}

	if conf.PaymentKey == "" {
		conf.PaymentKey = paymentKey
	}

	if resp.ApprovedAt != nil {
		conf.ApprovedAt = *resp.ApprovedAt
	}

	return conf, nil
}

func (c *Client) Cancel(ctx context.Context, paymentKey, reason string) (entity.CancelResult, error) {
	var resp paymentResponse

	err := c.call(ctx, "cancel", http.MethodPost, fmt.Sprintf(cancelPath, url.PathEscape(paymentKey)), cancelRequest{
		CancelReason: reason,
	}, &resp)
	if err != nil {
		return entity.CancelResult{}, err
	}

	res := entity.CancelResult{Amount: resp.TotalAmount}

	if n := len(resp.Cancels); n > 0 {
		res.Amount = resp.Cancels[n-1].CancelAmount
		res.CanceledAt = resp.Cancels[n-1].CanceledAt
	}

	return res, nil
}

func (c *Client) Inquire(ctx context.Context, orderID string) (entity.Inquiry, error) {
	var resp paymentResponse

	err := c.call(ctx, "inquire", http.MethodGet, fmt.Sprintf(inquirePath, url.PathEscape(orderID)), nil, &resp)
	if err != nil {
		return entity.Inquiry{}, err
	}

	return entity.Inquiry{
		Status:     inquiryStatus(resp.Status),
		PaymentKey: resp.PaymentKey,
		Method:     resp.Method,
		Amount:     resp.TotalAmount,
		ApprovedAt: resp.ApprovedAt,
	}, nil
}

// inquiryStatus folds gateway statuses into done, canceled-or-failed and in-progress.
func inquiryStatus(status string) entity.InquiryStatus {
	switch status {
	case "DONE":
		return entity.InquiryDone
	case "CANCELED", "PARTIAL_CANCELED", "ABORTED", "EXPIRED":
		return entity.InquiryCanceledOrFailed
	default:
		return entity.InquiryInProgress
	}
}

func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, op, method, path, body, out)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &Error{Op: op, Retryable: true, Err: err}
		}

		return err
	}

	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("json.Marshal: %w", err)}
		}

		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("http.NewRequestWithContext: %w", err)}
	}

	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// timeouts, refused connections and cancelled contexts are all worth retrying
		return &Error{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Retryable: true, Err: fmt.Errorf("io.ReadAll: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.Unmarshal(raw, &e)

		return &Error{
			Op:        op,
			Status:    resp.StatusCode,
			Code:      e.Code,
			Message:   e.Message,
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	if out != nil && len(raw) > 0 {
		if err = json.Unmarshal(raw, out); err != nil {
			return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("json.Unmarshal: %w", err)}
		}
	}

	return nil
}
