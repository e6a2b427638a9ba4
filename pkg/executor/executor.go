// Package executor is a bounded task pool that refuses work when saturated
// instead of blocking the submitter.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
	"golang.org/x/sync/errgroup"
)

const (
	_defaultWorkers         = 4
	_defaultShutdownTimeout = 5 * time.Second
)

type Pool struct {
	name            string
	workers         int
	shutdownTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	// mu orders Submit's TryGo before Shutdown's Wait
	mu     sync.RWMutex
	closed bool

	logger logger.Interface
}

func New(name string, l logger.Interface, opts ...Option) *Pool {
	p := &Pool{
		name:            name,
		workers:         _defaultWorkers,
		shutdownTimeout: _defaultShutdownTimeout,
		logger:          l,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.eg = &errgroup.Group{}
	p.eg.SetLimit(p.workers)

	return p
}

// Submit runs task on a pool goroutine. It never blocks: when every worker is
// busy or the pool is shut down it returns errs.ErrPoolSaturated.
// The task context is cancelled on Shutdown.
func (p *Pool) Submit(task func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return fmt.Errorf("Executor - %s - Submit - pool closed: %w", p.name, errs.ErrPoolSaturated)
	}

	ok := p.eg.TryGo(func() error {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error(fmt.Errorf("panic: %v", r), "Executor - %s - task", p.name)
			}
		}()

		task(p.ctx)

		return nil
	})
	if !ok {
		return fmt.Errorf("Executor - %s - Submit: %w", p.name, errs.ErrPoolSaturated)
	}

	return nil
}

// Shutdown stops accepting tasks and waits for running ones until ctx or the
// shutdown timeout expires, then cancels them.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.eg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Executor - %s - Shutdown", p.name)

		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	p.cancel()
	<-done

	return fmt.Errorf("Executor - %s - Shutdown: %w", p.name, errors.New("timeout waiting for tasks"))
}
