package reconciliation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/robfig/cron/v3"
)

const JobName = "payment-reconciliation"

// Scheduler runs a reconciliation sweep on a cron schedule. Each sweep holds
// a cluster-wide lease, so only one instance audits at a time.
type Scheduler struct {
	rc     usecase.ReconciliationUseCase
	locker infrastructure.Locker
	logger logger.Interface

	spec  string
	lease infrastructure.LeaseOptions

	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
}

func New(
	rc usecase.ReconciliationUseCase,
	locker infrastructure.Locker,
	l logger.Interface,
	spec string,
	lockAtMostFor time.Duration,
	lockAtLeastFor time.Duration,
) *Scheduler {
	return &Scheduler{
		rc:     rc,
		locker: locker,
		logger: l,
		spec:   spec,
		lease: infrastructure.LeaseOptions{
			AtMost:  lockAtMostFor,
			AtLeast: lockAtLeastFor,
		},
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("Scheduler - Start - scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	cl := cronLogger{l: s.logger}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(s.ctx) }); err != nil {
		s.cancel()

		return fmt.Errorf("Scheduler - Start - s.cron.AddFunc %q: %w", s.spec, err)
	}

	s.cron.Start()

	return nil
}

// RunOnce performs one sweep if this instance wins the lease.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	lease, ok, err := s.locker.TryLock(ctx, JobName, s.lease)
	if err != nil {
		s.logger.Error(err, "Scheduler - RunOnce - s.locker.TryLock")

		return false
	}

	if !ok {
		s.logger.Debug("Scheduler - RunOnce - %s is running elsewhere", JobName)

		return false
	}

	defer func() {
		// release must outlive a cancelled sweep
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := lease.Release(releaseCtx); err != nil {
			s.logger.Error(err, "Scheduler - RunOnce - lease.Release")
		}
	}()

	sweepCtx, cancel := context.WithTimeout(ctx, s.lease.AtMost)
	defer cancel()

	if _, err = s.rc.Reconcile(sweepCtx); err != nil {
		s.logger.Error(err, "Scheduler - RunOnce - s.rc.Reconcile")
	}

	return true
}

func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}

	s.cancel()

	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("Scheduler - Shutdown: %w", ctx.Err())
	}
}

type cronLogger struct {
	l logger.Interface
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron - %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(err, "cron - %s %v", msg, keysAndValues)
}
