package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsTasks(t *testing.T) {
	t.Parallel()

	p := New("test", logger.Nop(), Workers(2))

	var wg sync.WaitGroup
	wg.Add(3)

	for range 3 {
		for {
			err := p.Submit(func(context.Context) { wg.Done() })
			if err == nil {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	wg.Wait()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_SaturatedRejects(t *testing.T) {
	t.Parallel()

	p := New("test", logger.Nop(), Workers(1))

	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	err := p.Submit(func(context.Context) {})
	require.ErrorIs(t, err, errs.ErrPoolSaturated)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_RecoversPanic(t *testing.T) {
	t.Parallel()

	p := New("test", logger.Nop(), Workers(1))

	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	t.Parallel()

	p := New("test", logger.Nop())
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(func(context.Context) {})
	assert.ErrorIs(t, err, errs.ErrPoolSaturated)
}

func TestPool_ShutdownTimeoutCancelsTasks(t *testing.T) {
	t.Parallel()

	p := New("test", logger.Nop(), Workers(1), ShutdownTimeout(10*time.Millisecond))

	require.NoError(t, p.Submit(func(ctx context.Context) { <-ctx.Done() }))

	err := p.Shutdown(context.Background())
	assert.Error(t, err)
}

func TestPool_SubmitRacingShutdown(t *testing.T) {
	t.Parallel()

	for range 50 {
		p := New("test", logger.Nop(), Workers(4))

		var (
			wg            sync.WaitGroup
			mu            sync.Mutex
			accepted, ran int
		)

		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()

				err := p.Submit(func(context.Context) {
					mu.Lock()
					ran++
					mu.Unlock()
				})
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}()
		}

		require.NoError(t, p.Shutdown(context.Background()))
		wg.Wait()

		// every task accepted before Shutdown returned has finished
		mu.Lock()
		assert.Equal(t, accepted, ran)
		mu.Unlock()
	}
}
