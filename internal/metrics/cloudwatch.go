// Package metrics emits sync and relay measurements to CloudWatch. Metric
// emission is strictly best-effort: a CloudWatch failure is logged and the
// measurement dropped, never surfaced to the caller.
package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"ordersync/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names.
const (
	metricOrdersFetched  = "OrdersFetched"
	metricOrdersInserted = "OrdersInserted"
	metricCycleErrors    = "CycleErrors"
	metricRelaySent      = "RelaySent"
	metricRelayRetried   = "RelayRetried"
	metricRelayFailed    = "RelayFailed"

	dimSource = "Source"
	dimMode   = "Mode"
)

// CloudWatch publishes engine and relay metrics to a CloudWatch namespace.
// Satisfies engine.Metrics and relay.Metrics.
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatch creates a CloudWatch metrics publisher.
func NewCloudWatch(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, logger: logger}
}

// RecordPage emits fetched and inserted counts for one completed sync page,
// dimensioned by source and mode.
func (m *CloudWatch) RecordPage(ctx context.Context, source types.SourceKind, mode types.SyncMode, rawCount, insertedCount int) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(dimSource), Value: aws.String(string(source))},
		{Name: aws.String(dimMode), Value: aws.String(string(mode))},
	}
	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(metricOrdersFetched),
			Value:      aws.Float64(float64(rawCount)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		{
			MetricName: aws.String(metricOrdersInserted),
			Value:      aws.Float64(float64(insertedCount)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	})
}

// RecordCycleError emits one sync cycle failure, dimensioned by source and
// mode.
func (m *CloudWatch) RecordCycleError(ctx context.Context, source types.SourceKind, mode types.SyncMode) {
	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(metricCycleErrors),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(dimSource), Value: aws.String(string(source))},
				{Name: aws.String(dimMode), Value: aws.String(string(mode))},
			},
		},
	})
}

// RecordRelayDelivery emits the outcome counts of one relay delivery batch.
func (m *CloudWatch) RecordRelayDelivery(ctx context.Context, sent, retried, failed int) {
	data := make([]cwtypes.MetricDatum, 0, 3)
	for _, d := range []struct {
		name  string
		value int
	}{
		{metricRelaySent, sent},
		{metricRelayRetried, retried},
		{metricRelayFailed, failed},
	} {
		if d.value == 0 {
			continue
		}
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(d.name),
			Value:      aws.Float64(float64(d.value)),
			Unit:       cwtypes.StandardUnitCount,
		})
	}
	if len(data) == 0 {
		return
	}
	m.put(ctx, data)
}

func (m *CloudWatch) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish metrics", "error", err)
	}
}
