package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// PutMetricDataAPI is the subset of the CloudWatch client used here
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics sends turn measurements to CloudWatch. Used in Lambda
// where nothing scrapes /metrics. Sends are fire and forget.
type CloudWatchMetrics struct {
	client    PutMetricDataAPI
	namespace string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewCloudWatchMetrics creates a CloudWatch sink
func NewCloudWatchMetrics(client PutMetricDataAPI, namespace string, logger *zap.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{client: client, namespace: namespace, timeout: 2 * time.Second, logger: logger}
}

// ObserveTurn implements ports.TurnMetrics
func (m *CloudWatchMetrics) ObserveTurn(backend, outcome string, duration time.Duration, chunks int) {
	dims := []types.Dimension{
		{Name: aws.String("Backend"), Value: aws.String(backend)},
		{Name: aws.String("Outcome"), Value: aws.String(outcome)},
	}
	m.put([]types.MetricDatum{
		{MetricName: aws.String("TurnCount"), Value: aws.Float64(1), Unit: types.StandardUnitCount, Dimensions: dims},
		{MetricName: aws.String("TurnDuration"), Value: aws.Float64(float64(duration.Milliseconds())), Unit: types.StandardUnitMilliseconds, Dimensions: dims},
		{MetricName: aws.String("TurnChunks"), Value: aws.Float64(float64(chunks)), Unit: types.StandardUnitCount, Dimensions: dims},
	})
}

// ObserveFirstChunk implements ports.TurnMetrics
func (m *CloudWatchMetrics) ObserveFirstChunk(backend string, latency time.Duration) {
	m.put([]types.MetricDatum{{
		MetricName: aws.String("FirstChunkLatency"),
		Value:      aws.Float64(float64(latency.Milliseconds())),
		Unit:       types.StandardUnitMilliseconds,
		Dimensions: []types.Dimension{{Name: aws.String("Backend"), Value: aws.String(backend)}},
	}})
}

// ObserveExtraction implements ports.TurnMetrics
func (m *CloudWatchMetrics) ObserveExtraction(outcome string, duration time.Duration) {
	dims := []types.Dimension{{Name: aws.String("Outcome"), Value: aws.String(outcome)}}
	m.put([]types.MetricDatum{
		{MetricName: aws.String("ExtractionCount"), Value: aws.Float64(1), Unit: types.StandardUnitCount, Dimensions: dims},
		{MetricName: aws.String("ExtractionDuration"), Value: aws.Float64(float64(duration.Milliseconds())), Unit: types.StandardUnitMilliseconds, Dimensions: dims},
	})
}

func (m *CloudWatchMetrics) put(data []types.MetricDatum) {
	now := time.Now()
	for i := range data {
		data[i].Timestamp = aws.Time(now)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if _, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}); err != nil {
		m.logger.Warn("Failed to put metric data", zap.Error(err))
	}
}
