package errs

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownType    = errors.New("unknown type")

	// transactional
	ErrNoTransaction  = errors.New("no transaction in context")
	ErrSerialization  = errors.New("event serialization failed")
	ErrDuplicateEvent = errors.New("duplicate outbox event id")

	// business state conflicts
	ErrAlreadyProcessed    = errors.New("payment already processed")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOwnershipMismatch   = errors.New("payment does not belong to member")
	ErrAmountMismatch      = errors.New("payment amount mismatch")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrRechargeAlreadyUsed = errors.New("recharged amount already used, cannot cancel")
	ErrCancelPending       = errors.New("cancellation accepted, completion pending")
	ErrMalformedPayload    = errors.New("malformed payload")

	// gateway, retryable failures match ErrGatewayUnavailable
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrGatewayRejected        = errors.New("payment gateway rejected the request")
	ErrGatewayNotFound        = errors.New("payment not found at gateway")
	ErrGatewayAlreadyCanceled = errors.New("payment already canceled at gateway")

	ErrPoolSaturated     = errors.New("task pool saturated")
	ErrUnsupportedDriver = errors.New("unsupported broker driver")
)
