// Package app wires configuration into the runtime objects shared by the
// pricewatch binaries: the database store, provider workers, the worker
// manager, the queue and the scheduler.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"pricewatch/internal/backfill"
	"pricewatch/internal/config"
	"pricewatch/internal/db"
	"pricewatch/internal/external"
	"pricewatch/internal/ingest"
	"pricewatch/internal/jobs"
	"pricewatch/internal/queue"
	"pricewatch/internal/scheduler"
	"pricewatch/internal/security"
)

// NewLogger returns a JSON logger writing to w at the named level. Unknown
// levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel maps a LOG_LEVEL value to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadAWSConfig loads the SDK configuration for the configured region,
// pointing every client at EndpointURL when one is set (LocalStack).
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.EndpointURL))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// Runtime owns the long-lived dependencies of one process.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *db.Store
	Publisher ingest.TriggerPublisher
	Metrics   ingest.Metrics
}

// Open connects to the database and, when the configuration asks for them,
// builds the SQS trigger publisher and CloudWatch metrics. Callers must Close
// the returned Runtime.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Store:   db.NewStore(pool),
		Metrics: ingest.NoopMetrics{},
	}

	if cfg.AWS.AlertTriggerQueue == "" && !cfg.Observability.EnableMetrics {
		return rt, nil
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		rt.Close()
		return nil, err
	}

	if cfg.AWS.AlertTriggerQueue != "" {
		rt.Publisher = queue.NewTriggerPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)
	}
	if cfg.Observability.EnableMetrics {
		rt.Metrics = ingest.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	return rt, nil
}

// Close releases the database pool.
func (r *Runtime) Close() {
	if r.Store != nil {
		r.Store.Close()
	}
}

// Workers builds one provider worker per kind.
func (r *Runtime) Workers(kinds []string) ([]ingest.Worker, error) {
	return BuildWorkers(r.Config.Ingest, kinds, r.Publisher, r.Logger)
}

// Manager returns a worker manager over the runtime's store.
func (r *Runtime) Manager() *ingest.Manager {
	return ingest.NewManager(r.Store, r.Logger, ingest.WithMetrics(r.Metrics))
}

// Queue returns the enqueue service over the runtime's store.
func (r *Runtime) Queue() *jobs.Queue {
	return jobs.NewQueue(r.Store, r.Logger)
}

// Scheduler returns a scheduler running the default schedule.
func (r *Runtime) Scheduler() *scheduler.Scheduler {
	return scheduler.New(
		r.Queue(),
		r.Store,
		scheduler.DefaultSchedule(scheduler.DefaultRegions),
		r.Config.Ingest.StaleClaimTTL,
		r.Logger,
	)
}

// Backfill returns a backfill engine writing to the runtime's store.
func (r *Runtime) Backfill() *backfill.Engine {
	return backfill.NewEngine(r.Store, r.Logger)
}

// BuildWorkers creates a ProviderWorker per kind. Each worker gets its own
// HTTP client so rate limits and breaker state are per upstream. A nil
// publisher leaves triggers logged only.
func BuildWorkers(cfg config.IngestConfig, kinds []string, publisher ingest.TriggerPublisher, logger *slog.Logger) ([]ingest.Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	workers := make([]ingest.Worker, 0, len(kinds))
	seen := make(map[string]bool, len(kinds))
	for _, raw := range kinds {
		kind := strings.TrimSpace(raw)
		if kind == "" || seen[kind] {
			continue
		}
		seen[kind] = true

		feedURL, err := cfg.FeedURL(kind)
		if err != nil {
			return nil, err
		}

		client := external.NewClient(
			newHTTPClient(cfg),
			kind,
			retryPolicy(cfg),
			cfg.UserAgent,
			external.WithRateLimit(cfg.RequestRPS, cfg.RequestBurst),
		)

		opts := []ingest.WorkerOption{ingest.WithLogger(logger)}
		if publisher != nil {
			opts = append(opts, ingest.WithPublisher(publisher))
		}
		workers = append(workers, ingest.NewProviderWorker(ingest.NewHTTPSource(kind, feedURL, client), opts...))
	}

	if len(workers) == 0 {
		return nil, fmt.Errorf("no provider kinds configured")
	}
	return workers, nil
}

// maxFeedRedirects caps redirects followed by a provider client.
const maxFeedRedirects = 5

// newHTTPClient returns a guarded client unless private feeds are allowed.
func newHTTPClient(cfg config.IngestConfig) *http.Client {
	if cfg.AllowPrivateFeeds {
		return &http.Client{Timeout: cfg.RequestTimeout}
	}
	return security.NewHTTPClient(security.NewGuard(nil), cfg.RequestTimeout, maxFeedRedirects)
}

func retryPolicy(cfg config.IngestConfig) external.RetryPolicy {
	p := external.DefaultRetryPolicy()
	p.MaxRetries = cfg.MaxRetries
	return p
}

// Every runs fn immediately and then every interval until ctx is done. It
// returns the first error from fn.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
