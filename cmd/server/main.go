package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"backoffice/internal/auth/local/accounts"
	jwttoken "backoffice/internal/jwt_token"
	"backoffice/internal/notify"
	"backoffice/internal/platform/config"
	"backoffice/internal/platform/httpserver"
	"backoffice/internal/platform/kafka"
	"backoffice/internal/platform/logger"
	"backoffice/internal/platform/postgres"
	httptransport "backoffice/internal/transport/http"
	"backoffice/pkg/platform/audit"
	"backoffice/pkg/platform/audit/publisher"
	auditkafka "backoffice/pkg/platform/audit/store/kafka"
	auditmemory "backoffice/pkg/platform/audit/store/memory"
)

const shutdownTimeout = 10 * time.Second

// main serves the credential backend the local provider talks to. Business
// logic lives in internal/auth/local/accounts.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	producer, err := kafka.NewProducer(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
		if err := producer.EnsureTopics(ctx, cfg.Kafka.AuditTopic, cfg.Kafka.NotificationTopic); err != nil {
			return err
		}
	}

	notifier, auditStore := outbound(cfg, producer, log)
	auditor := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(256),
		publisher.WithErrorHandler(func(err error) {
			log.Warn("audit event dropped", "error", err)
		}),
	)
	defer auditor.Close()

	store, closeStore, err := accountStore(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens := jwttoken.NewJWTService(cfg.Accounts.JWTSigningKey, cfg.Accounts.JWTIssuer, cfg.Accounts.JWTAudience)
	backend, err := accounts.New(store, tokens,
		accounts.WithConfig(accounts.Config{
			AccessTokenTTL:   cfg.Accounts.AccessTokenTTL,
			RefreshTokenTTL:  cfg.Accounts.RefreshTokenTTL,
			ResetTokenTTL:    cfg.Accounts.ResetTokenTTL,
			LockoutThreshold: cfg.Accounts.LockoutThreshold,
			LockoutDuration:  cfg.Accounts.LockoutDuration,
			TOTPIssuer:       cfg.Accounts.TOTPIssuer,
			BackupCodeCount:  accounts.DefaultConfig().BackupCodeCount,
			StepUpTTL:        cfg.Accounts.StepUpTTL,
			StepUpAttempts:   cfg.Accounts.StepUpAttempts,
		}),
		accounts.WithNotifier(notifier),
		accounts.WithAuditEmitter(auditor),
		accounts.WithLogger(log),
	)
	if err != nil {
		return err
	}

	if cfg.Accounts.SeedDemoAccounts {
		if !cfg.IsDevelopment() {
			log.Warn("refusing to seed demo accounts outside development")
		} else {
			n, err := backend.Seed(ctx, accounts.DemoAccounts(cfg.Accounts.DemoPassword))
			if err != nil {
				return err
			}
			log.Info("seeded demo accounts", "created", n)
		}
	}

	router := httptransport.NewRouter(log, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		httptransport.NewAccountsHandler(backend, jwttoken.NewJWTServiceAdapter(tokens), log),
	)
	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting backoffice credential backend", "addr", cfg.Addr, "env", cfg.Environment)
	return httpserver.Run(ctx, srv, log, shutdownTimeout)
}

// outbound picks the notifier and audit sink. Without Kafka, notifications
// go to the log in development and are refused everywhere else.
func outbound(cfg config.Config, producer *kafka.Producer, log *slog.Logger) (notify.Notifier, audit.Store) {
	if producer == nil {
		if !cfg.IsDevelopment() {
			log.Warn("kafka is not configured, two-factor codes and password resets cannot be delivered")
		}
		return notify.Fallback(cfg.IsDevelopment(), log), auditmemory.NewInMemoryStore()
	}
	return notify.NewKafkaNotifier(producer, cfg.Kafka.NotificationTopic), auditkafka.New(producer, cfg.Kafka.AuditTopic)
}

// accountStore uses Postgres when a database URL is configured and falls back
// to memory otherwise.
func accountStore(ctx context.Context, cfg config.PostgresConfig) (accounts.Store, func(), error) {
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		return accounts.NewInMemory(), func() {}, nil
	}
	store := accounts.NewPostgres(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, closer(db), nil
}

func closer(db *sql.DB) func() {
	return func() { _ = db.Close() }
}
