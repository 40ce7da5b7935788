// Package config defines the process configuration for the pricewatch
// binaries. Configuration is loaded once at startup and is immutable
// thereafter.
//
// Values are resolved from the OS environment first and a .env file second.
// A missing required value or an invalid format fails the process before any
// work starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"pricewatch/internal/types"
)

// SecretString is an alias for types.SecretString so configuration structs
// can declare secrets without importing types.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"pricewatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database      DatabaseConfig
	Ingest        IngestConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not Env
	Build BuildInfo
}

// DatabaseConfig holds connection strings and pool tuning. URL is the primary
// (transaction pooler) connection; SessionURL is the session-mode variant used
// by long-lived claimers when set. With neither URL set, PGHOST must be, and
// the driver builds the connection from the PG* variables.
type DatabaseConfig struct {
	URL        SecretString `envconfig:"DATABASE_URL" validate:"required_without_all=SessionURL PGHost"`
	SessionURL SecretString `envconfig:"DATABASE_URL_SESSION"`
	PGHost     string       `envconfig:"PGHOST"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// ConnString returns the session URL when configured and the primary URL
// otherwise. An empty result tells pgx to read the PG* variables.
func (c DatabaseConfig) ConnString() string {
	if !c.SessionURL.IsZero() {
		return c.SessionURL.Unmask()
	}
	return c.URL.Unmask()
}

// IngestConfig holds worker and upstream client settings.
type IngestConfig struct {
	// WorkerRole and QueueName are set by the orchestrator for child processes.
	WorkerRole string `envconfig:"WORKER_ROLE" default:"worker-manager" validate:"oneof=worker-manager ingest-worker"`
	QueueName  string `envconfig:"QUEUE_NAME"`
	BindAddr   string `envconfig:"BIND_ADDR" default:":8090"`

	// Providers lists the job kinds the worker manager builds workers for.
	Providers []string `envconfig:"PROVIDERS" default:"psstore.region,steam.catalog,xbox.catalog,nexarda.prices,giantbomb.games"`

	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	RequestRPS     float64       `envconfig:"REQUEST_RPS" default:"2" validate:"gt=0"`
	RequestBurst   int           `envconfig:"REQUEST_BURST" default:"1" validate:"min=1"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"20s"`
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0,max=10"`
	StaleClaimTTL  time.Duration `envconfig:"STALE_CLAIM_TTL" default:"30m"`
	UserAgent      string        `envconfig:"USER_AGENT" default:"pricewatch-ingest/1.0"`

	// FeedBaseURL is the root of the normalized price feed; each kind is
	// served under its own path segment. A job payload "url" overrides it.
	FeedBaseURL string `envconfig:"FEED_BASE_URL" validate:"omitempty,url"`

	// AllowPrivateFeeds lets provider clients reach loopback and private
	// addresses. Local development against a feed on localhost needs it.
	AllowPrivateFeeds bool `envconfig:"ALLOW_PRIVATE_FEEDS" default:"false"`
}

// FeedURL returns the feed endpoint for kind.
func (c IngestConfig) FeedURL(kind string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(c.FeedBaseURL), "/")
	if base == "" {
		return "", &ConfigError{
			Type:    ErrMissingEnv,
			Message: fmt.Sprintf("FEED_BASE_URL is required to ingest %s", kind),
		}
	}
	return base + "/" + kind, nil
}

// AWSConfig holds AWS resource identifiers. AlertTriggerQueue may be empty, in
// which case triggers are logged and not published.
type AWSConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"us-east-1"`
	AlertTriggerQueue string `envconfig:"SQS_ALERT_TRIGGERS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"PriceWatch/Ingest"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into its
	// target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
