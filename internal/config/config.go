package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Recovery RecoveryConfig
	Email    EmailConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME" envDefault:"recovery-service"`
	Env                   string `env:"APP_ENV" envDefault:"development"`
	Host                  string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"APP_PORT" envDefault:"8080"`
	Version               string `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	CORSAllowOrigins      string `env:"HTTP_CORS_ALLOW_ORIGINS" envDefault:"*"`
	PublicRateLimit       int    `env:"HTTP_PUBLIC_RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	// PublicBaseURL is the site customers land on from emailed links.
	PublicBaseURL string `env:"APP_PUBLIC_BASE_URL" envDefault:"https://testimonioya.com"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string        `env:"POSTGRES_DSN"`
	MaxConns       int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns       int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations  bool          `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	MaxConnIdle    time.Duration `env:"POSTGRES_CONN_MAX_IDLE" envDefault:"30s"`
	MaxConnLife    time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnectTimeout time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" envDefault:"5s"`
	// ApplicationName tags sessions in pg_stat_activity.
	ApplicationName string `env:"POSTGRES_APPLICATION_NAME" envDefault:"recovery-service"`
}

// SQLiteConfig selects the embedded store when no Postgres DSN is set.
type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH"`
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
// The limiter fails open, so timeouts stay short.
type RedisConfig struct {
	Addr         string        `env:"REDIS_ADDR"`
	Password     string        `env:"REDIS_PASSWORD"`
	DB           int           `env:"REDIS_DB" envDefault:"0"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"2s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"500ms"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"500ms"`
}

// NATSConfig enables mirroring recovery events to JetStream.
type NATSConfig struct {
	URL   string `env:"NATS_URL"`
	Token string `env:"NATS_TOKEN"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// AuthConfig defines session authentication parameters.
type AuthConfig struct {
	// JWTSecret verifies HS256 session tokens issued by the auth provider.
	JWTSecret             string `env:"AUTH_JWT_SECRET,required,notEmpty"`
	AccessTokenTTLMinutes int    `env:"AUTH_ACCESS_TOKEN_TTL_MINUTES" envDefault:"60"`
}

// RecoveryConfig controls the customer capability tokens and reply flow.
type RecoveryConfig struct {
	TokenSecret         string   `env:"RECOVERY_TOKEN_SECRET,required,notEmpty"`
	PreviousSecrets     []string `env:"RECOVERY_TOKEN_PREVIOUS_SECRETS" envSeparator:","`
	MaxTokenFailures    int      `env:"RECOVERY_MAX_TOKEN_FAILURES" envDefault:"10"`
	TokenFailureWindow  int      `env:"RECOVERY_TOKEN_FAILURE_WINDOW_SECONDS" envDefault:"900"`
	NotifyQueueSize     int      `env:"RECOVERY_NOTIFY_QUEUE_SIZE" envDefault:"256"`
	NotifyWorkers       int      `env:"RECOVERY_NOTIFY_WORKERS" envDefault:"4"`
	NotifyTimeoutSecond int      `env:"RECOVERY_NOTIFY_TIMEOUT_SECONDS" envDefault:"10"`
}

// EmailConfig holds the transactional email provider settings.
type EmailConfig struct {
	ResendAPIKey string `env:"RESEND_API_KEY"`
	ResendURL    string `env:"RESEND_API_URL" envDefault:"https://api.resend.com/emails"`
	From         string `env:"NOTIFY_EMAIL_FROM" envDefault:"TestimonioYa <hola@testimonioya.com>"`
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.App.PublicBaseURL = strings.TrimRight(cfg.App.PublicBaseURL, "/")
	cfg.Recovery.PreviousSecrets = compact(cfg.Recovery.PreviousSecrets)
	return &cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// FailureWindow returns the window over which failed token attempts are counted.
func (r RecoveryConfig) FailureWindow() time.Duration {
	if r.TokenFailureWindow <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(r.TokenFailureWindow) * time.Second
}

// NotifyTimeout bounds a single notification delivery.
func (r RecoveryConfig) NotifyTimeout() time.Duration {
	if r.NotifyTimeoutSecond <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.NotifyTimeoutSecond) * time.Second
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
