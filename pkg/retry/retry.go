// Package retry runs an operation under an exponential backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	_defaultMaxAttempts     = 3
	_defaultInitialInterval = time.Second
	_defaultMaxInterval     = 5 * time.Second
	_defaultMultiplier      = 2.0
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     _defaultMaxAttempts,
		InitialInterval: _defaultInitialInterval,
		MaxInterval:     _defaultMaxInterval,
		Multiplier:      _defaultMultiplier,
	}
}

// Retryable classifies an error; false stops retrying immediately.
type Retryable func(err error) bool

// Do calls op until it succeeds, retryable reports false, attempts run out or
// ctx is done. The last error from op is returned, or ctx.Err() on cancellation.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, retryable Retryable) error {
	return backoff.RetryNotify(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}, p.backOff(ctx), nil)
}

// Notify is Do with a callback invoked before each wait.
func (p Policy) Notify(ctx context.Context, op func(ctx context.Context) error, retryable Retryable, notify func(err error, wait time.Duration)) error {
	return backoff.RetryNotify(func() error {
		err := op(ctx)
		if err != nil && retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}, p.backOff(ctx), notify)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.Multiplier = p.Multiplier
	eb.MaxElapsedTime = 0

	if eb.InitialInterval <= 0 {
		eb.InitialInterval = _defaultInitialInterval
	}

	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}

	if eb.Multiplier < 1 {
		eb.Multiplier = _defaultMultiplier
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx) //nolint:gosec // attempts >= 1
}
