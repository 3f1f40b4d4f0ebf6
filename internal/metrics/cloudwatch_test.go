package metrics

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"ordersync/internal/types"
)

type mockCloudWatchClient struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func datumByName(t *testing.T, data []cwtypes.MetricDatum, name string) cwtypes.MetricDatum {
	t.Helper()
	for _, d := range data {
		if aws.ToString(d.MetricName) == name {
			return d
		}
	}
	t.Fatalf("no datum named %s in %v", name, data)
	return cwtypes.MetricDatum{}
}

func TestRecordPage_EmitsFetchedAndInserted(t *testing.T) {
	client := &mockCloudWatchClient{}
	cw := NewCloudWatch(client, "OrderSync", slog.New(slog.DiscardHandler))

	cw.RecordPage(context.Background(), types.SourceOpenSea, types.ModeRealtime, 50, 40)

	if len(client.inputs) != 1 {
		t.Fatalf("expected one put, got %d", len(client.inputs))
	}
	input := client.inputs[0]
	if aws.ToString(input.Namespace) != "OrderSync" {
		t.Errorf("namespace = %s", aws.ToString(input.Namespace))
	}
	if len(input.MetricData) != 2 {
		t.Fatalf("expected 2 datums, got %d", len(input.MetricData))
	}

	fetched := datumByName(t, input.MetricData, "OrdersFetched")
	if aws.ToFloat64(fetched.Value) != 50 {
		t.Errorf("OrdersFetched = %f", aws.ToFloat64(fetched.Value))
	}
	inserted := datumByName(t, input.MetricData, "OrdersInserted")
	if aws.ToFloat64(inserted.Value) != 40 {
		t.Errorf("OrdersInserted = %f", aws.ToFloat64(inserted.Value))
	}

	if len(fetched.Dimensions) != 2 {
		t.Fatalf("expected Source and Mode dimensions, got %v", fetched.Dimensions)
	}
	dims := map[string]string{}
	for _, d := range fetched.Dimensions {
		dims[aws.ToString(d.Name)] = aws.ToString(d.Value)
	}
	if dims["Source"] != "opensea" || dims["Mode"] != "realtime" {
		t.Errorf("dimensions = %v", dims)
	}
}

func TestRecordCycleError_EmitsOne(t *testing.T) {
	client := &mockCloudWatchClient{}
	cw := NewCloudWatch(client, "OrderSync", slog.New(slog.DiscardHandler))

	cw.RecordCycleError(context.Background(), types.SourceRarible, types.ModeBackfill)

	if len(client.inputs) != 1 {
		t.Fatalf("expected one put, got %d", len(client.inputs))
	}
	d := datumByName(t, client.inputs[0].MetricData, "CycleErrors")
	if aws.ToFloat64(d.Value) != 1 {
		t.Errorf("CycleErrors = %f", aws.ToFloat64(d.Value))
	}
}

func TestRecordRelayDelivery_SkipsZeroValues(t *testing.T) {
	client := &mockCloudWatchClient{}
	cw := NewCloudWatch(client, "OrderSync", slog.New(slog.DiscardHandler))

	cw.RecordRelayDelivery(context.Background(), 10, 0, 2)

	if len(client.inputs) != 1 {
		t.Fatalf("expected one put, got %d", len(client.inputs))
	}
	data := client.inputs[0].MetricData
	if len(data) != 2 {
		t.Fatalf("expected 2 datums (zero retried skipped), got %d", len(data))
	}
	datumByName(t, data, "RelaySent")
	datumByName(t, data, "RelayFailed")
}

func TestRecordRelayDelivery_AllZeroSkipsThePut(t *testing.T) {
	client := &mockCloudWatchClient{}
	cw := NewCloudWatch(client, "OrderSync", slog.New(slog.DiscardHandler))

	cw.RecordRelayDelivery(context.Background(), 0, 0, 0)

	if len(client.inputs) != 0 {
		t.Error("an all-zero batch must not call CloudWatch")
	}
}

func TestPut_ErrorIsSwallowed(t *testing.T) {
	client := &mockCloudWatchClient{err: errors.New("throttled")}
	cw := NewCloudWatch(client, "OrderSync", slog.New(slog.DiscardHandler))

	// Must not panic or propagate; the measurement is simply dropped.
	cw.RecordPage(context.Background(), types.SourceOpenSea, types.ModeRealtime, 1, 1)
}
