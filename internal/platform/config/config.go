// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Config is the complete process configuration shared by cmd/server and
// cmd/authctl. Each binary reads the sections it needs.
type Config struct {
	Environment string `env:"BACKOFFICE_ENV"        envDefault:"development"`
	Addr        string `env:"BACKOFFICE_ADDR"       envDefault:":8080"`
	LogLevel    string `env:"BACKOFFICE_LOG_LEVEL"  envDefault:"info"`
	LogFormat   string `env:"BACKOFFICE_LOG_FORMAT" envDefault:"json"`

	Auth      AuthConfig
	Accounts  AccountsConfig
	Federated FederatedConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	SQLite    SQLiteConfig
	Kafka     KafkaConfig
}

// AuthConfig tunes the session orchestrator.
type AuthConfig struct {
	SessionMaxAge       time.Duration `env:"BACKOFFICE_SESSION_MAX_AGE"       envDefault:"24h"`
	RefreshWindow       time.Duration `env:"BACKOFFICE_REFRESH_WINDOW"        envDefault:"2m"`
	ChallengeTTL        time.Duration `env:"BACKOFFICE_CHALLENGE_TTL"         envDefault:"5m"`
	MaxAttempts         int           `env:"BACKOFFICE_CHALLENGE_MAX_ATTEMPTS" envDefault:"5"`
	LogoutTimeout       time.Duration `env:"BACKOFFICE_LOGOUT_TIMEOUT"        envDefault:"5s"`
	FederatedDomains    []string      `env:"BACKOFFICE_FEDERATED_DOMAINS"     envSeparator:","`
	RoleMappingFile     string        `env:"BACKOFFICE_ROLE_MAPPING_FILE"`
	SessionStore        string        `env:"BACKOFFICE_SESSION_STORE"         envDefault:"sqlite"`
	SessionKey          string        `env:"BACKOFFICE_SESSION_KEY"           envDefault:"backoffice:session:current"`
	LocalBackendURL     string        `env:"BACKOFFICE_LOCAL_BACKEND_URL"     envDefault:"http://localhost:8080"`
	LocalBackendTimeout time.Duration `env:"BACKOFFICE_LOCAL_BACKEND_TIMEOUT" envDefault:"10s"`
}

// AccountsConfig tunes the in-process credential backend served by cmd/server.
type AccountsConfig struct {
	JWTSigningKey    string        `env:"BACKOFFICE_JWT_SIGNING_KEY"  envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer        string        `env:"BACKOFFICE_JWT_ISSUER"       envDefault:"backoffice-accounts"`
	JWTAudience      string        `env:"BACKOFFICE_JWT_AUDIENCE"     envDefault:"backoffice"`
	AccessTokenTTL   time.Duration `env:"BACKOFFICE_ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL  time.Duration `env:"BACKOFFICE_REFRESH_TOKEN_TTL" envDefault:"12h"`
	ResetTokenTTL    time.Duration `env:"BACKOFFICE_RESET_TOKEN_TTL"  envDefault:"30m"`
	LockoutThreshold int           `env:"BACKOFFICE_LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration  time.Duration `env:"BACKOFFICE_LOCKOUT_DURATION" envDefault:"15m"`
	TOTPIssuer       string        `env:"BACKOFFICE_TOTP_ISSUER"      envDefault:"Backoffice"`
	StepUpTTL        time.Duration `env:"BACKOFFICE_STEP_UP_TTL"      envDefault:"5m"`
	StepUpAttempts   int           `env:"BACKOFFICE_STEP_UP_ATTEMPTS" envDefault:"5"`
	SeedDemoAccounts bool          `env:"BACKOFFICE_SEED_DEMO_ACCOUNTS" envDefault:"false"`
	DemoPassword     string        `env:"BACKOFFICE_DEMO_PASSWORD"    envDefault:"backoffice-demo-Passw0rd"`
}

// FederatedConfig configures the OIDC identity provider.
type FederatedConfig struct {
	Issuer          string   `env:"BACKOFFICE_OIDC_ISSUER"`
	ClientID        string   `env:"BACKOFFICE_OIDC_CLIENT_ID"`
	ClientSecret    string   `env:"BACKOFFICE_OIDC_CLIENT_SECRET"`
	RedirectURL     string   `env:"BACKOFFICE_OIDC_REDIRECT_URL"  envDefault:"http://127.0.0.1:8765/callback"`
	Scopes          []string `env:"BACKOFFICE_OIDC_SCOPES"        envSeparator:"," envDefault:"openid,profile,email,offline_access"`
	RoleClaim       string   `env:"BACKOFFICE_OIDC_ROLE_CLAIM"    envDefault:"roles"`
	OrgClaim        string   `env:"BACKOFFICE_OIDC_ORG_CLAIM"     envDefault:"org_id"`
	LogoutReturnURL string   `env:"BACKOFFICE_OIDC_LOGOUT_RETURN_URL"`
}

// Enabled reports whether a federated provider is configured.
func (c FederatedConfig) Enabled() bool {
	return c.Issuer != "" && c.ClientID != ""
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string        `env:"BACKOFFICE_REDIS_URL"`
	PoolSize     int           `env:"BACKOFFICE_REDIS_POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"BACKOFFICE_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"BACKOFFICE_REDIS_DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"BACKOFFICE_REDIS_READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"BACKOFFICE_REDIS_WRITE_TIMEOUT"  envDefault:"3s"`
}

// PostgresConfig holds database settings.
type PostgresConfig struct {
	URL             string        `env:"BACKOFFICE_DATABASE_URL"`
	MaxOpenConns    int           `env:"BACKOFFICE_DB_MAX_OPEN_CONNS"    envDefault:"10"`
	MaxIdleConns    int           `env:"BACKOFFICE_DB_MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"BACKOFFICE_DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// SQLiteConfig locates the CLI session database.
type SQLiteConfig struct {
	Path string `env:"BACKOFFICE_SQLITE_PATH" envDefault:"backoffice-session.db"`
}

// KafkaConfig enables the audit and notification topics.
type KafkaConfig struct {
	Brokers           []string `env:"BACKOFFICE_KAFKA_BROKERS"            envSeparator:","`
	AuditTopic        string   `env:"BACKOFFICE_KAFKA_AUDIT_TOPIC"        envDefault:"backoffice.auth.audit"`
	NotificationTopic string   `env:"BACKOFFICE_KAFKA_NOTIFICATION_TOPIC" envDefault:"backoffice.auth.notifications"`
	ClientID          string   `env:"BACKOFFICE_KAFKA_CLIENT_ID"          envDefault:"backoffice"`
}

// Enabled reports whether brokers are configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Auth.FederatedDomains = normalizeDomains(cfg.Auth.FederatedDomains)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}

// Validate rejects unsafe or nonsensical settings.
func (c Config) Validate() error {
	if !c.IsDevelopment() && c.Accounts.JWTSigningKey == devSigningKey {
		return fmt.Errorf("config: BACKOFFICE_JWT_SIGNING_KEY must be set outside development")
	}
	if c.Auth.SessionMaxAge <= 0 || c.Auth.ChallengeTTL <= 0 || c.Auth.LogoutTimeout <= 0 {
		return fmt.Errorf("config: session max age, challenge TTL and logout timeout must be positive")
	}
	if c.Auth.MaxAttempts <= 0 {
		return fmt.Errorf("config: challenge max attempts must be positive")
	}
	switch c.Auth.SessionStore {
	case "memory", "sqlite", "redis", "postgres":
	default:
		return fmt.Errorf("config: unknown session store %q", c.Auth.SessionStore)
	}
	return nil
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out = append(out, d)
		}
	}
	return out
}
