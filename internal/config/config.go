// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Email providers.
const (
	EmailSES      = "ses"
	EmailPostmark = "postmark"
	EmailLog      = "log"
)

// Push providers.
const (
	PushSNS  = "sns"
	PushHTTP = "http"
	PushNone = "none"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Env      string `env:"ENV" envDefault:"development"`
	Version  string `env:"VERSION" envDefault:"dev"`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// StoreDriver selects postgres or the in-memory store.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	Database DatabaseConfig `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	AWS      AWSConfig      `envPrefix:"AWS_"`
	Email    EmailConfig
	SMS      SMSConfig
	Push     PushConfig
	Breaker  BreakerConfig `envPrefix:"BREAKER_"`
	Queue    QueueConfig
	SQS      SQSConfig     `envPrefix:"SQS_"`
	Tracing  TracingConfig `envPrefix:"OTEL_"`

	// DefaultTimezone applies to users without a stored timezone.
	DefaultTimezone string `env:"DEFAULT_TIMEZONE" envDefault:"UTC"`

	RateLimit       int           `env:"RATE_LIMIT" envDefault:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

type DatabaseConfig struct {
	URL      string `env:"URL"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"courier"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"courier"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"25"`

	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
}

// RedisConfig is optional: with no host and no URL the service runs without
// the preference cache, idempotency and rate limiting.
type RedisConfig struct {
	URL      string `env:"URL"`
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`

	PreferenceTTL time.Duration `env:"PREFERENCE_TTL" envDefault:"10m"`
}

// Enabled reports whether a Redis server is configured.
func (c RedisConfig) Enabled() bool {
	return c.URL != "" || c.Host != ""
}

type AWSConfig struct {
	Region string `env:"REGION" envDefault:"us-east-1"`
	// Endpoint overrides every AWS service endpoint, e.g. for LocalStack.
	Endpoint string `env:"ENDPOINT_URL"`
}

type EmailConfig struct {
	Provider string `env:"EMAIL_PROVIDER" envDefault:"log"`
	From     string `env:"EMAIL_FROM" envDefault:"noreply@courier.local"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`

	RatePerSecond float64 `env:"EMAIL_RATE_PER_SECOND" envDefault:"14"`
}

type SMSConfig struct {
	// Enabled sends through SNS; otherwise messages are logged locally.
	Enabled       bool    `env:"SMS_ENABLED" envDefault:"false"`
	SenderID      string  `env:"SNS_SENDER_ID"`
	RatePerSecond float64 `env:"SMS_RATE_PER_SECOND" envDefault:"20"`
}

type PushConfig struct {
	Provider      string        `env:"PUSH_PROVIDER" envDefault:"none"`
	URL           string        `env:"PUSH_URL"`
	AuthToken     string        `env:"PUSH_AUTH_TOKEN"`
	Timeout       time.Duration `env:"PUSH_TIMEOUT" envDefault:"10s"`
	RatePerSecond float64       `env:"PUSH_RATE_PER_SECOND" envDefault:"50"`
}

type BreakerConfig struct {
	MaxFailures         int           `env:"MAX_FAILURES" envDefault:"5"`
	RecoveryTimeout     time.Duration `env:"RECOVERY_TIMEOUT" envDefault:"30s"`
	HalfOpenMaxRequests int           `env:"HALF_OPEN_MAX_REQUESTS" envDefault:"1"`
}

type QueueConfig struct {
	MaxAttempts      int           `env:"MAX_ATTEMPTS" envDefault:"4"`
	DefaultPriority  int           `env:"DEFAULT_PRIORITY" envDefault:"5"`
	DrainInterval    time.Duration `env:"DRAIN_INTERVAL" envDefault:"30s"`
	DrainBatchSize   int           `env:"DRAIN_BATCH_SIZE" envDefault:"50"`
	DrainConcurrency int           `env:"DRAIN_CONCURRENCY" envDefault:"10"`
	PoolWorkers      int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	PoolBuffer       int           `env:"DISPATCH_BUFFER" envDefault:"256"`
}

// SQSConfig enables the SQS hand-off when QueueURL is set.
type SQSConfig struct {
	QueueURL          string `env:"QUEUE_URL"`
	MaxMessages       int32  `env:"MAX_MESSAGES" envDefault:"10"`
	WaitSeconds       int32  `env:"WAIT_SECONDS" envDefault:"20"`
	VisibilityTimeout int32  `env:"VISIBILITY_TIMEOUT" envDefault:"60"`
}

type TracingConfig struct {
	Endpoint   string  `env:"EXPORTER_OTLP_ENDPOINT"`
	Insecure   bool    `env:"EXPORTER_OTLP_INSECURE" envDefault:"false"`
	SampleRate float64 `env:"TRACES_SAMPLE_RATE" envDefault:"1"`
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads configuration from the environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.StoreDriver {
	case StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreDriver))
	}

	switch c.Email.Provider {
	case EmailLog, EmailSES:
	case EmailPostmark:
		if c.Email.PostmarkServerToken == "" {
			errs = append(errs, errors.New("POSTMARK_SERVER_TOKEN is required for the postmark provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Email.Provider))
	}

	switch c.Push.Provider {
	case PushNone, PushSNS:
	case PushHTTP:
		if c.Push.URL == "" {
			errs = append(errs, errors.New("PUSH_URL is required for the http provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PUSH_PROVIDER %q", c.Push.Provider))
	}

	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("MAX_ATTEMPTS must be at least 1"))
	}
	if c.Queue.DefaultPriority < 0 {
		errs = append(errs, errors.New("DEFAULT_PRIORITY must not be negative"))
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err))
	}

	return errors.Join(errs...)
}
