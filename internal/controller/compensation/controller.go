// Package compensation consumes compensation requests and finishes the local
// side of cancels the gateway already confirmed.
package compensation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/retry"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/types/errs"
)

const (
	OutcomeApplied     = "applied"
	OutcomeNoop        = "noop"
	OutcomeRejected    = "rejected"
	OutcomeRedelivered = "redelivered"
	OutcomeExhausted   = "exhausted"
)

// errors no retry can fix
var permanent = []error{
	errs.ErrMalformedPayload,
	errs.ErrRecordNotFound,
	errs.ErrOwnershipMismatch,
	errs.ErrAmountMismatch,
	errs.ErrInvalidTransition,
	errs.ErrAlreadyProcessed,
}

func retryable(err error) bool {
	for _, target := range permanent {
		if errors.Is(err, target) {
			return false
		}
	}

	return !errors.Is(err, errs.ErrInsufficientBalance) && !errors.Is(err, context.Canceled)
}

type Controller struct {
	pay     usecase.PaymentUseCase
	src     infrastructure.DeliverySource
	alerter infrastructure.Alerter
	metrics infrastructure.Recorder
	logger  logger.Interface

	policy          retry.Policy
	maxRedeliveries int
	ackTimeout      time.Duration
	processTimeout  time.Duration

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	started atomic.Bool
}

func New(
	pay usecase.PaymentUseCase,
	src infrastructure.DeliverySource,
	alerter infrastructure.Alerter,
	m infrastructure.Recorder,
	l logger.Interface,
	policy retry.Policy,
	maxRedeliveries int,
	ackTimeout time.Duration,
	processTimeout time.Duration,
	workers int,
) *Controller {
	return &Controller{
		pay:             pay,
		src:             src,
		alerter:         alerter,
		metrics:         m,
		logger:          l,
		policy:          policy,
		maxRedeliveries: maxRedeliveries,
		ackTimeout:      ackTimeout,
		processTimeout:  processTimeout,
		workers:         workers,
	}
}

func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("CompensationController - Start - controller already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	tasks := make(chan infrastructure.Delivery, c.workers*2)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)

		go c.worker(tasks)
	}

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		defer close(tasks)

		for {
			d, err := c.src.Read(c.ctx)
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}

				c.logger.Error(err, "CompensationController - Start - c.src.Read")

				select {
				case <-c.ctx.Done():
					return
				case <-time.After(time.Second):
				}

				continue
			}

			select {
			case tasks <- d:
			case <-c.ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (c *Controller) worker(tasks <-chan infrastructure.Delivery) {
	defer c.wg.Done()

	for d := range tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error(fmt.Errorf("panic %v", r), "CompensationController - worker - panic")
				}
			}()

			c.handle(c.ctx, d)
		}()
	}
}

func (c *Controller) handle(ctx context.Context, d infrastructure.Delivery) {
	// 1. decode
	var event entity.CompensationEvent

	if err := json.Unmarshal(d.Body(), &event); err != nil {
		c.reject(ctx, d, fmt.Errorf("json.Unmarshal: %w: %w", errs.ErrMalformedPayload, err))

		return
	}

	if err := event.Validate(); err != nil {
		c.reject(ctx, d, err)

		return
	}

	// 2. apply under the in-process retry policy
	processCtx, cancel := context.WithTimeout(ctx, c.processTimeout)
	defer cancel()

	var applied bool

	err := c.policy.Do(processCtx, func(ctx context.Context) error {
		var err error

		applied, err = c.pay.ApplyCompensation(ctx, event)

		return err
	}, retryable)

	switch {
	case err == nil:
		outcome := OutcomeNoop
		if applied {
			outcome = OutcomeApplied
		}

		c.settle(ctx, d, outcome, func(ctx context.Context) error { return d.Ack(ctx) })
	case ctx.Err() != nil:
		// shutting down, the broker redelivers the unsettled message
		return
	case errors.Is(err, errs.ErrInsufficientBalance):
		c.escalate(ctx, d, event, err)
	case !retryable(err):
		c.reject(ctx, d, err)
	case d.Attempt() < c.maxRedeliveries:
		c.logger.Warn("CompensationController - handle - payment %d attempt %d: %v", event.PaymentID, d.Attempt(), err)
		c.settle(ctx, d, OutcomeRedelivered, func(ctx context.Context) error { return d.Retry(ctx) })
	default:
		c.escalate(ctx, d, event, err)
	}
}

func (c *Controller) reject(ctx context.Context, d infrastructure.Delivery, err error) {
	c.logger.Warn("CompensationController - reject - event %s: %v", d.Header(entity.HeaderEventID), err)
	c.settle(ctx, d, OutcomeRejected, func(ctx context.Context) error { return d.DeadLetter(ctx, err.Error()) })
}

// escalate is the last automated step: an operator has to reconcile by hand.
func (c *Controller) escalate(ctx context.Context, d infrastructure.Delivery, event entity.CompensationEvent, err error) {
	c.logger.Error(err, "CompensationController - escalate - payment %d, member %d, amount %s, original error: %s",
		event.PaymentID, event.MemberID, event.Amount, event.OriginalError)

	c.alerter.Notify(ctx, entity.Alert{
		Severity: entity.SeverityCritical,
		Title:    "Compensation failed, manual refund required",
		Fields: map[string]string{
			"paymentId":         strconv.FormatInt(event.PaymentID, 10),
			"memberId":          strconv.FormatInt(event.MemberID, 10),
			"amount":            event.Amount.String(),
			"originalError":     event.OriginalError,
			"compensationError": err.Error(),
			"attempt":           strconv.Itoa(d.Attempt()),
		},
	})

	c.settle(ctx, d, OutcomeExhausted, func(ctx context.Context) error { return d.DeadLetter(ctx, err.Error()) })
}

func (c *Controller) settle(ctx context.Context, d infrastructure.Delivery, outcome string, f func(ctx context.Context) error) {
	c.metrics.Compensated(outcome)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.ackTimeout)
	defer cancel()

	if err := f(ctx); err != nil {
		c.logger.Error(err, "CompensationController - settle - %s", outcome)
	}
}

func (c *Controller) Shutdown(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})

	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if err := c.src.Close(); err != nil {
			return fmt.Errorf("CompensationController - Shutdown - c.src.Close: %w", err)
		}

		return nil
	case <-ctx.Done():
		return fmt.Errorf("CompensationController - Shutdown: %w", ctx.Err())
	}
}
