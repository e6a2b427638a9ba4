package gateway

import (
	"errors"
	"fmt"

	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
)

const (
	codeNotFound        = "NOT_FOUND_PAYMENT"
	codeAlreadyCanceled = "ALREADY_CANCELED_PAYMENT"
)

// Error is a failed gateway call. Retryable errors match
// errs.ErrGatewayUnavailable; the rest match errs.ErrGatewayRejected.
type Error struct {
	Op        string
	Status    int
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: status=%d code=%s: %v", e.Op, e.Status, e.Code, e.Err)
	}

	return fmt.Sprintf("gateway %s: status=%d code=%s message=%s", e.Op, e.Status, e.Code, e.Message)
}

// Failure returns the gateway's code and message for recording on a payment.
func (e *Error) Failure() (string, string) {
	code, msg := e.Code, e.Message
	if code == "" {
		code = fmt.Sprintf("HTTP_%d", e.Status)
	}

	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	return code, msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch {
	case errors.Is(target, errs.ErrGatewayUnavailable):
		return e.Retryable
	case errors.Is(target, errs.ErrGatewayRejected):
		return !e.Retryable
	case errors.Is(target, errs.ErrGatewayNotFound):
		return e.Code == codeNotFound
	case errors.Is(target, errs.ErrGatewayAlreadyCanceled):
		return e.Code == codeAlreadyCanceled
	default:
		return false
	}
}

// IsRetryable reports whether err is a transient gateway failure.
func IsRetryable(err error) bool {
	return errors.Is(err, errs.ErrGatewayUnavailable)
}

func retryableStatus(status int) bool {
	return status >= 500 || status == 408 || status == 429
}
