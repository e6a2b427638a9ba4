package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	}, nil)

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_SingleAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Policy{MaxAttempts: 0}.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNotify_ReportsWaits(t *testing.T) {
	t.Parallel()

	var waits int
	err := fastPolicy(3).Notify(context.Background(), func(context.Context) error {
		return errTransient
	}, nil, func(error, time.Duration) { waits++ })

	require.Error(t, err)
	assert.Equal(t, 2, waits)
}
