package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the authentication metrics. All methods are nil-safe so
// components can be constructed without instrumentation in tests.
type Metrics struct {
	LoginAttempts           *prometheus.CounterVec
	TwoFactorOutcomes       *prometheus.CounterVec
	SessionEvictions        *prometheus.CounterVec
	FederatedLogoutFailures prometheus.Counter
	UnmappedRoles           *prometheus.CounterVec
	SessionStoreLatency     *prometheus.HistogramVec
	SessionActive           prometheus.Gauge
}

// New creates and registers all metrics on reg. Pass
// prometheus.DefaultRegisterer in binaries and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_auth_login_attempts_total",
			Help: "Login attempts by provider, outcome and rejection reason",
		}, []string{"provider", "outcome", "reason"}),
		TwoFactorOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_auth_two_factor_outcomes_total",
			Help: "Two-factor challenge attempts by method and outcome",
		}, []string{"method", "outcome"}),
		SessionEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_auth_session_evictions_total",
			Help: "Sessions removed from the token store by cause",
		}, []string{"cause"}),
		FederatedLogoutFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "backoffice_auth_federated_logout_failures_total",
			Help: "Federated provider logout calls that failed or timed out",
		}),
		UnmappedRoles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_auth_unmapped_roles_total",
			Help: "Role strings that fell back to the default role, by source",
		}, []string{"source"}),
		SessionStoreLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_auth_session_store_latency_seconds",
			Help:    "Durable session store operation latency",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"backend", "op"}),
		SessionActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "backoffice_auth_session_active",
			Help: "1 when an authenticated session is committed, 0 otherwise",
		}),
	}
}

func (m *Metrics) ObserveLogin(provider, outcome, reason string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(provider, outcome, reason).Inc()
}

func (m *Metrics) ObserveTwoFactor(method, outcome string) {
	if m == nil {
		return
	}
	m.TwoFactorOutcomes.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) IncrementEviction(cause string) {
	if m == nil {
		return
	}
	m.SessionEvictions.WithLabelValues(cause).Inc()
}

func (m *Metrics) IncrementFederatedLogoutFailure() {
	if m == nil {
		return
	}
	m.FederatedLogoutFailures.Inc()
}

func (m *Metrics) IncrementUnmappedRole(source string) {
	if m == nil {
		return
	}
	m.UnmappedRoles.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveStoreLatency(backend, op string, start time.Time) {
	if m == nil {
		return
	}
	m.SessionStoreLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetSessionActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.SessionActive.Set(1)
		return
	}
	m.SessionActive.Set(0)
}
