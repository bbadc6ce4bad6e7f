package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"backoffice/internal/auth/federated"
	"backoffice/internal/auth/federated/oidc"
	"backoffice/internal/auth/local"
	"backoffice/internal/auth/local/httpbackend"
	"backoffice/internal/auth/rolemap"
	"backoffice/internal/auth/session"
	"backoffice/internal/auth/store/kv"
	"backoffice/internal/auth/tokenstore"
	"backoffice/internal/auth/twofactor"
	"backoffice/internal/notify"
	"backoffice/internal/platform/config"
	"backoffice/internal/platform/kafka"
	"backoffice/internal/platform/metrics"
	"backoffice/internal/platform/postgres"
	"backoffice/internal/platform/redis"
	"backoffice/pkg/platform/audit"
	"backoffice/pkg/platform/audit/publisher"
	auditkafka "backoffice/pkg/platform/audit/store/kafka"
)

// app is everything a command needs, built once per invocation.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	orch     *session.Orchestrator
	sso      *oidc.Transport
	closers  []func()
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	m := metrics.New(a.registry)

	roles := rolemap.Default()
	if cfg.Auth.RoleMappingFile != "" {
		loaded, err := rolemap.LoadFile(cfg.Auth.RoleMappingFile)
		if err != nil {
			return nil, err
		}
		roles = loaded
	}

	durable, err := a.durable(ctx, m)
	if err != nil {
		a.close()
		return nil, err
	}
	store := tokenstore.New(durable,
		tokenstore.WithKey(cfg.Auth.SessionKey),
		tokenstore.WithMaxAge(cfg.Auth.SessionMaxAge),
		tokenstore.WithLogger(log),
		tokenstore.WithMetrics(m),
	)

	backend, err := httpbackend.New(cfg.Auth.LocalBackendURL, httpbackend.WithTimeout(cfg.Auth.LocalBackendTimeout))
	if err != nil {
		a.close()
		return nil, err
	}
	localSvc, err := local.New(backend,
		local.WithRoleMapping(roles),
		local.WithMetrics(m),
		local.WithLogger(log),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	notifier, auditor, err := a.outbound(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	challenges := twofactor.NewRegistry(
		twofactor.WithTTL(cfg.Auth.ChallengeTTL),
		twofactor.WithMaxAttempts(cfg.Auth.MaxAttempts),
		twofactor.WithNotifier(notifier),
		twofactor.WithStepUp(localSvc),
		twofactor.WithLogger(log),
	)

	opts := []session.Option{
		session.WithAccountManager(localSvc),
		session.WithFederatedDomains(cfg.Auth.FederatedDomains...),
		session.WithRefreshWindow(cfg.Auth.RefreshWindow),
		session.WithLogoutTimeout(cfg.Auth.LogoutTimeout),
		session.WithLogger(log),
		session.WithMetrics(m),
		session.WithAuditEmitter(auditor),
	}
	if adapter := a.federated(ctx, roles, m); adapter != nil {
		opts = append(opts, session.WithFederated(adapter))
	}

	a.orch, err = session.New(localSvc, store, challenges, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// durable opens the configured session backend.
func (a *app) durable(ctx context.Context, m *metrics.Metrics) (tokenstore.Durable, error) {
	switch a.cfg.Auth.SessionStore {
	case "memory":
		return kv.NewInMemory(), nil
	case "redis":
		client, err := redis.New(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, fmt.Errorf("session store redis requires BACKOFFICE_REDIS_URL")
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return kv.NewRedis(client.Client,
			kv.WithTTL(a.cfg.Auth.SessionMaxAge),
			kv.WithRedisLatency(m),
		), nil
	case "postgres":
		db, err := postgres.Open(ctx, a.cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if db == nil {
			return nil, fmt.Errorf("session store postgres requires BACKOFFICE_DATABASE_URL")
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		store := kv.NewPostgres(db, kv.WithPostgresLatency(m))
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := kv.OpenSQLite(ctx, a.cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store.WithLatency(m), nil
	}
}

// outbound picks the code notifier and audit sink. Without Kafka, codes go
// to the log in development and are refused everywhere else.
func (a *app) outbound(ctx context.Context) (notify.Notifier, audit.Emitter, error) {
	producer, err := kafka.NewProducer(ctx, a.cfg.Kafka, a.log)
	if err != nil {
		return nil, nil, err
	}
	if producer == nil {
		return notify.Fallback(a.cfg.IsDevelopment(), a.log), nil, nil
	}
	auditor := publisher.NewPublisher(auditkafka.New(producer, a.cfg.Kafka.AuditTopic))
	a.closers = append(a.closers, producer.Close)
	return notify.NewKafkaNotifier(producer, a.cfg.Kafka.NotificationTopic), auditor, nil
}

// federated discovers the OIDC provider. A provider that cannot be reached
// leaves federated login unavailable without failing local commands.
func (a *app) federated(ctx context.Context, roles *rolemap.Normalizer, m *metrics.Metrics) *federated.Adapter {
	fc := a.cfg.Federated
	if !fc.Enabled() {
		return nil
	}
	transport, err := oidc.New(ctx, oidc.Config{
		Issuer:          fc.Issuer,
		ClientID:        fc.ClientID,
		ClientSecret:    fc.ClientSecret,
		RedirectURL:     fc.RedirectURL,
		Scopes:          fc.Scopes,
		LogoutReturnURL: fc.LogoutReturnURL,
	}, &http.Client{Timeout: a.cfg.Auth.LocalBackendTimeout})
	if err != nil {
		a.log.Warn("federated provider unavailable", "issuer", fc.Issuer, "error", err)
		return nil
	}
	adapter, err := federated.New(transport,
		federated.WithRoleMapping(roles),
		federated.WithRoleClaim(fc.RoleClaim),
		federated.WithOrgClaim(fc.OrgClaim),
		federated.WithLogoutTimeout(a.cfg.Auth.LogoutTimeout),
		federated.WithLogger(a.log),
		federated.WithMetrics(m),
	)
	if err != nil {
		a.log.Warn("federated adapter misconfigured", "error", err)
		return nil
	}
	a.sso = transport
	return adapter
}

// finish waits for background provider logouts and releases resources.
func (a *app) finish() {
	a.orch.Wait()
	a.close()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// dumpMetrics writes the process metrics in the Prometheus text format.
func (a *app) dumpMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
