package ingest

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names and dimensions emitted for worker runs.
const (
	MetricWorkerRun      = "WorkerRun"
	MetricWorkerDuration = "WorkerDuration"
	DimWorker            = "Worker"
	DimResult            = "Result"
)

// Result dimension values.
const (
	ResultSuccess  = "success"
	ResultFailed   = "failed"
	ResultPanicked = "panicked"
)

// Metrics receives one call per worker outcome.
type Metrics interface {
	RecordWorkerRun(ctx context.Context, o Outcome)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

// RecordWorkerRun implements Metrics.
func (NoopMetrics) RecordWorkerRun(context.Context, Outcome) {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics emits, per outcome:
//   - WorkerRun: Dims {Worker, Result}, Count 1
//   - WorkerDuration: Dims {Worker}, Milliseconds
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordWorkerRun implements Metrics. Publish failures are logged and
// otherwise ignored.
func (m *CloudWatchMetrics) RecordWorkerRun(ctx context.Context, o Outcome) {
	result := ResultSuccess
	switch {
	case o.Panicked:
		result = ResultPanicked
	case o.Err != nil:
		result = ResultFailed
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricWorkerRun),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimWorker), Value: aws.String(o.Worker)},
					{Name: aws.String(DimResult), Value: aws.String(result)},
				},
			},
			{
				MetricName: aws.String(MetricWorkerDuration),
				Value:      aws.Float64(float64(o.Duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimWorker), Value: aws.String(o.Worker)},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record worker metric",
			"error", err.Error(),
			"worker", o.Worker,
			"result", result,
		)
	}
}
