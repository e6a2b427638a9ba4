package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andreyxaxa/Ledger-Outbox/config"
	"github.com/andreyxaxa/Ledger-Outbox/internal/controller/compensation"
	"github.com/andreyxaxa/Ledger-Outbox/internal/controller/restapi"
	"github.com/andreyxaxa/Ledger-Outbox/internal/controller/worker/outbox"
	"github.com/andreyxaxa/Ledger-Outbox/internal/controller/worker/reconciliation"
	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/alert"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/gateway"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/lock"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure/metrics"
	"github.com/andreyxaxa/Ledger-Outbox/internal/repo"
	"github.com/andreyxaxa/Ledger-Outbox/internal/repo/persistent"
	outboxuc "github.com/andreyxaxa/Ledger-Outbox/internal/usecase/outbox"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase/payment"
	reconciliationuc "github.com/andreyxaxa/Ledger-Outbox/internal/usecase/reconciliation"
	"github.com/andreyxaxa/Ledger-Outbox/migrations"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/executor"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/httpserver"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/postgres"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/redis"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/retry"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/s3client"
	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
)

func Run(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Logger
	l := logger.New(cfg.Log.Level)

	clock := clockwork.NewRealClock()
	m := metrics.New()

	// Repository

	// postgres
	if cfg.PG.MigrateOnStart {
		err := migrate(cfg.PG.URL, l)
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - migrate: %w", err))
		}
	}

	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax), postgres.Logger(l))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - postgres.New: %w", err))
	}
	defer pg.Close()

	// s3, optional
	var archive repo.OutboxArchive
	if cfg.Archive.Endpoint != "" {
		s3Ctx, s3Cancel := context.WithTimeout(ctx, cfg.Archive.CfgLoadTimeout)
		s3c, err := s3client.New(s3Ctx, cfg.Archive.Endpoint, cfg.Archive.AccessKey, cfg.Archive.SecretKey,
			s3client.Region(cfg.Archive.Region),
			s3client.UsePathStyle(true),
			s3client.EnsureBucket(cfg.Archive.Bucket),
		)
		s3Cancel()
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - s3client.New: %w", err))
		}

		archive = persistent.NewOutboxArchive(s3c, cfg.Archive.Bucket)
	}

	// redis
	rdb, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - redis.New: %w", err))
	}
	defer rdb.Close()

	// Broker
	brk, err := newBroker(ctx, cfg)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - newBroker: %w", err))
	}

	// Pools
	hybridPool := executor.New("hybrid-publisher", l, executor.Workers(cfg.Hybrid.Workers))
	alertPool := executor.New("alert-webhook", l, executor.Workers(cfg.Alert.Workers))

	alerter := alert.New(cfg.Alert.WebhookURL, alertPool, m, l)

	// Use-Case

	// outbox
	outboxRepo := persistent.NewOutboxRepo(pg)
	updater := outboxuc.NewStatusUpdater(outboxRepo, pg, clock, l)
	hybridPublisher := outboxuc.NewHybridPublisher(hybridPool, brk.sender, updater, m, cfg.OutboxRelay.SendTimeout, l)

	hybridTypes, err := entity.ParseEventTypes(cfg.Hybrid.EventTypes)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - entity.ParseEventTypes: %w", err))
	}

	capturer := outboxuc.NewCapturer(outboxRepo, pg, hybridPublisher, hybridTypes, clock, l)

	outboxUseCase := outboxuc.New(
		outboxRepo,
		brk.sender,
		updater,
		archive,
		alerter,
		m,
		clock,
		outboxuc.RelayConfig{
			BatchSize:    cfg.OutboxRelay.BatchSize,
			MaxRetries:   cfg.OutboxRelay.MaxRetries,
			StaleAfter:   cfg.OutboxRelay.StaleAfter,
			Retention:    cfg.OutboxRelay.Retention,
			CleanupBatch: cfg.OutboxRelay.CleanupBatch,
			AlertLimit:   cfg.OutboxRelay.AlertLimit,
			SendTimeout:  cfg.OutboxRelay.SendTimeout,
		},
		l,
	)

	// payment
	paymentRepo := persistent.NewPaymentRepo(pg)

	gw := gateway.New(cfg.Gateway.URL, cfg.Gateway.SecretKey, l,
		gateway.Timeout(cfg.Gateway.Timeout),
		gateway.Breaker(cfg.Gateway.BreakerFailures, cfg.Gateway.BreakerOpenTimeout),
	)

	orderIDs, err := snowflake.NewNode(cfg.Snowflake.Node)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - snowflake.NewNode: %w", err))
	}

	paymentUseCase := payment.New(
		paymentRepo,
		persistent.NewWalletRepo(pg),
		persistent.NewPaymentHistoryRepo(pg),
		pg,
		capturer,
		gw,
		alerter,
		orderIDs,
		clock,
		l,
	)

	// reconciliation
	reconciliationUseCase := reconciliationuc.New(
		paymentRepo,
		paymentUseCase,
		gw,
		alerter,
		m,
		clock,
		reconciliationuc.Config{
			StaleAfter: cfg.Reconciliation.StaleAfter,
			BatchSize:  cfg.Reconciliation.BatchSize,
		},
		l,
	)

	// Outbox Relay Worker
	outboxRelayWorker := outbox.New(
		outboxUseCase,
		clock,
		l,
		cfg.OutboxRelay.PollInterval,
		cfg.OutboxRelay.AlertInterval,
		cfg.OutboxRelay.CleanupInterval,
		cfg.OutboxRelay.ProcessBatchTimeout,
	)

	// Reconciliation Scheduler
	scheduler := reconciliation.New(
		reconciliationUseCase,
		lock.New(rdb.Client, clock, l),
		l,
		cfg.Reconciliation.Cron,
		cfg.Reconciliation.LockAtMostFor,
		cfg.Reconciliation.LockAtLeastFor,
	)

	// Compensation Consumer as Controller
	compensationController := compensation.New(
		paymentUseCase,
		brk.source,
		alerter,
		m,
		l,
		retry.Policy{
			MaxAttempts:     cfg.Compensation.MaxAttempts,
			InitialInterval: cfg.Compensation.InitialInterval,
			MaxInterval:     cfg.Compensation.MaxInterval,
			Multiplier:      cfg.Compensation.Multiplier,
		},
		cfg.Compensation.MaxRedeliveries,
		cfg.Compensation.AckTimeout,
		cfg.Compensation.ProcessTimeout,
		cfg.Compensation.Workers,
	)

	// HTTP Server
	httpServer := httpserver.New(l,
		httpserver.Port(cfg.HTTP.Port),
		httpserver.Prefork(cfg.HTTP.UsePreforkMode),
		httpserver.ShutdownTimeout(cfg.HTTP.ShutdownTimeout),
	)
	restapi.NewRouter(httpServer.App, outboxUseCase, m.Registry, l)

	// Start Components
	err = outboxRelayWorker.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - outboxRelayWorker.Start: %w", err))
	}
	err = scheduler.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - scheduler.Start: %w", err))
	}
	err = compensationController.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - compensationController.Start: %w", err))
	}
	httpServer.Start()

	// Waiting Signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: %s", s.String())
	case err = <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err))
	}

	// Shutdown
	err = httpServer.Shutdown()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", err))
	}

	ccShutdownCtx, ccShutdownCancel := context.WithTimeout(ctx, cfg.Compensation.ShutdownTimeout)
	defer ccShutdownCancel()
	err = compensationController.Shutdown(ccShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - compensationController.Shutdown: %w", err))
	}

	schShutdownCtx, schShutdownCancel := context.WithTimeout(ctx, cfg.Reconciliation.ShutdownTimeout)
	defer schShutdownCancel()
	err = scheduler.Shutdown(schShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - scheduler.Shutdown: %w", err))
	}

	orlShutdownCtx, orlShutdownCancel := context.WithTimeout(ctx, cfg.OutboxRelay.ShutdownTimeout)
	defer orlShutdownCancel()
	err = outboxRelayWorker.Shutdown(orlShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - outboxRelayWorker.Shutdown: %w", err))
	}

	poolShutdownCtx, poolShutdownCancel := context.WithTimeout(ctx, cfg.OutboxRelay.ShutdownTimeout)
	defer poolShutdownCancel()
	err = hybridPool.Shutdown(poolShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - hybridPool.Shutdown: %w", err))
	}
	err = alertPool.Shutdown(poolShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - alertPool.Shutdown: %w", err))
	}

	err = brk.sender.Close()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - sender.Close: %w", err))
	}
	err = brk.close()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - broker.close: %w", err))
	}
}

func migrate(url string, l logger.Interface) error {
	mg, err := postgres.NewMigrator(migrations.FS, url)
	if err != nil {
		return fmt.Errorf("postgres.NewMigrator: %w", err)
	}
	defer mg.Close()

	err = mg.Up()
	if err != nil {
		return fmt.Errorf("mg.Up: %w", err)
	}

	version, dirty, err := mg.Version()
	if err != nil {
		return fmt.Errorf("mg.Version: %w", err)
	}

	l.Info("app - migrate - schema version %d, dirty %t", version, dirty)

	return nil
}
