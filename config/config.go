package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverRabbitMQ = "rabbitmq"
	DriverKafka    = "kafka"
)

type (
	Config struct {
		HTTP           HTTP
		Log            Log
		PG             PG
		Redis          Redis
		Broker         Broker
		RabbitMQ       RabbitMQ
		Kafka          Kafka
		Archive        Archive
		OutboxRelay    OutboxRelay
		Hybrid         Hybrid
		Reconciliation Reconciliation
		Compensation   Compensation
		Gateway        Gateway
		Alert          Alert
		Snowflake      Snowflake
	}

	HTTP struct {
		Port            string        `env:"HTTP_PORT,required"`
		UsePreforkMode  bool          `env:"HTTP_USE_PREFORK_MODE" envDefault:"false"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"3s"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL,required"`
	}

	PG struct {
		PoolMax        int    `env:"PG_POOL_MAX,required"`
		URL            string `env:"PG_URL,required"`
		MigrateOnStart bool   `env:"PG_MIGRATE_ON_START" envDefault:"false"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR,required"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Broker struct {
		Driver string `env:"BROKER_DRIVER" envDefault:"rabbitmq"`
	}

	RabbitMQ struct {
		URL      string `env:"RABBITMQ_URL"`
		DLX      string `env:"RABBITMQ_DLX" envDefault:"ledger.dlx"`
		Queue    string `env:"RABBITMQ_COMPENSATION_QUEUE" envDefault:"ledger.payment.compensation"`
		Prefetch int    `env:"RABBITMQ_PREFETCH" envDefault:"16"`
	}

	Kafka struct {
		Brokers []string `env:"KAFKA_BROKERS"`
		GroupID string   `env:"KAFKA_GROUP_ID" envDefault:"ledger-compensation"`
	}

	// Archive is optional: with an empty endpoint published rows are deleted without a copy.
	Archive struct {
		Endpoint       string        `env:"S3_ENDPOINT"`
		AccessKey      string        `env:"S3_ACCESS_KEY"`
		SecretKey      string        `env:"S3_SECRET_KEY"`
		Bucket         string        `env:"S3_BUCKET" envDefault:"ledger-outbox-archive"`
		Region         string        `env:"S3_REGION" envDefault:"us-east-1"`
		CfgLoadTimeout time.Duration `env:"S3_LOAD_CFG_TIMEOUT" envDefault:"10s"`
	}

	OutboxRelay struct {
		PollInterval        time.Duration `env:"OUTBOX_RELAY_POLL_INTERVAL" envDefault:"5s"`
		AlertInterval       time.Duration `env:"OUTBOX_RELAY_ALERT_INTERVAL" envDefault:"1m"`
		CleanupInterval     time.Duration `env:"OUTBOX_RELAY_CLEANUP_INTERVAL" envDefault:"1h"`
		ProcessBatchTimeout time.Duration `env:"OUTBOX_RELAY_PROCESS_BATCH_TIMEOUT" envDefault:"30s"`
		ShutdownTimeout     time.Duration `env:"OUTBOX_RELAY_SHUTDOWN_TIMEOUT" envDefault:"5s"`
		SendTimeout         time.Duration `env:"OUTBOX_RELAY_SEND_TIMEOUT" envDefault:"5s"`
		BatchSize           int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`
		MaxRetries          int           `env:"OUTBOX_RELAY_MAX_RETRIES" envDefault:"5"`
		StaleAfter          time.Duration `env:"OUTBOX_RELAY_STALE_AFTER" envDefault:"5s"`
		Retention           time.Duration `env:"OUTBOX_RELAY_RETENTION" envDefault:"168h"`
		CleanupBatch        int           `env:"OUTBOX_RELAY_CLEANUP_BATCH" envDefault:"1000"`
		AlertLimit          int           `env:"OUTBOX_RELAY_ALERT_LIMIT" envDefault:"20"`
	}

	Hybrid struct {
		EventTypes []string `env:"HYBRID_EVENT_TYPES" envDefault:"PAYMENT_COMPENSATION_REQUESTED"`
		Workers    int      `env:"HYBRID_WORKERS" envDefault:"8"`
	}

	Reconciliation struct {
		Cron            string        `env:"RECONCILIATION_CRON" envDefault:"0 */5 * * * *"`
		StaleAfter      time.Duration `env:"RECONCILIATION_STALE_AFTER" envDefault:"10m"`
		BatchSize       int           `env:"RECONCILIATION_BATCH_SIZE" envDefault:"100"`
		LockAtMostFor   time.Duration `env:"RECONCILIATION_LOCK_AT_MOST_FOR" envDefault:"10m"`
		LockAtLeastFor  time.Duration `env:"RECONCILIATION_LOCK_AT_LEAST_FOR" envDefault:"4m"`
		ShutdownTimeout time.Duration `env:"RECONCILIATION_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	}

	Compensation struct {
		MaxAttempts     int           `env:"COMPENSATION_RETRY_MAX_ATTEMPTS" envDefault:"3"`
		InitialInterval time.Duration `env:"COMPENSATION_RETRY_INITIAL_INTERVAL" envDefault:"1s"`
		MaxInterval     time.Duration `env:"COMPENSATION_RETRY_MAX_INTERVAL" envDefault:"5s"`
		Multiplier      float64       `env:"COMPENSATION_RETRY_MULTIPLIER" envDefault:"2"`
		MaxRedeliveries int           `env:"COMPENSATION_MAX_REDELIVERIES" envDefault:"3"`
		Workers         int           `env:"COMPENSATION_WORKERS" envDefault:"4"`
		AckTimeout      time.Duration `env:"COMPENSATION_ACK_TIMEOUT" envDefault:"2s"`
		ProcessTimeout  time.Duration `env:"COMPENSATION_PROCESS_TIMEOUT" envDefault:"30s"`
		ShutdownTimeout time.Duration `env:"COMPENSATION_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	}

	Gateway struct {
		URL                string        `env:"GATEWAY_URL,required"`
		SecretKey          string        `env:"GATEWAY_SECRET_KEY,required"`
		Timeout            time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
		BreakerFailures    uint32        `env:"GATEWAY_BREAKER_FAILURES" envDefault:"5"`
		BreakerOpenTimeout time.Duration `env:"GATEWAY_BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	}

	Alert struct {
		WebhookURL string `env:"ALERT_WEBHOOK_URL"`
		Workers    int    `env:"ALERT_WORKERS" envDefault:"2"`
	}

	Snowflake struct {
		Node int64 `env:"SNOWFLAKE_NODE" envDefault:"1"`
	}
)

func New() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}
