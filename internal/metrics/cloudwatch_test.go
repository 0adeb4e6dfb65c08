package metrics

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"moverscan/logger"
)

func stubCloudWatch(t *testing.T) *[][]cwtypes.MetricDatum {
	t.Helper()

	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}, namespace: "Test"})
	t.Cleanup(func() { cwState.Store(prevState) })

	pendingMu.Lock()
	pending = nil
	pendingMu.Unlock()

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })
	return &batches
}

func TestFlushCloudWatchPublishesQueuedMetrics(t *testing.T) {
	resetMetricHandlers()
	batches := stubCloudWatch(t)

	EmitMetric(nil, "scheduler", "batch_duration_ms", 1200, "gauge", logger.Fields{"unit": "milliseconds", "symbol": "BTCUSDT", "stage": "klines"})
	EmitMetric(nil, "klines_reader", "ip_ban", int64(1), "counter", nil)
	EmitMetric(nil, "klines_reader", "label", "not-a-number", "gauge", nil)

	if len(*batches) != 0 {
		t.Fatalf("metrics published before flush")
	}

	FlushCloudWatch(context.Background())

	if len(*batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(*batches))
	}
	data := (*batches)[0]
	if len(data) != 2 {
		t.Fatalf("expected 2 datums, got %d", len(data))
	}
	first := data[0]
	if *first.MetricName != "batch_duration_ms" || first.Unit != cwtypes.StandardUnitMilliseconds {
		t.Fatalf("unexpected first datum: %+v", first)
	}
	for _, dim := range first.Dimensions {
		if *dim.Name == "symbol" {
			t.Fatalf("symbol must not be a dimension")
		}
	}
	if len(first.Dimensions) != 2 {
		t.Fatalf("expected component and stage dimensions, got %d", len(first.Dimensions))
	}

	FlushCloudWatch(context.Background())
	if len(*batches) != 1 {
		t.Fatalf("flush with empty queue should not publish")
	}
}

func TestFlushCloudWatchSplitsLargeBatches(t *testing.T) {
	resetMetricHandlers()
	batches := stubCloudWatch(t)

	for i := 0; i < maxDatumsPerRequest+5; i++ {
		EmitMetric(nil, "klines_reader", "used_weight", i, "gauge", nil)
	}
	FlushCloudWatch(context.Background())

	if len(*batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(*batches))
	}
	if len((*batches)[0]) != maxDatumsPerRequest || len((*batches)[1]) != 5 {
		t.Fatalf("unexpected split: %d/%d", len((*batches)[0]), len((*batches)[1]))
	}
}

func TestEmitMetricWithoutCloudWatchDoesNotQueue(t *testing.T) {
	resetMetricHandlers()
	prevState := cwState.Load()
	cwState.Store(nil)
	t.Cleanup(func() { cwState.Store(prevState) })

	pendingMu.Lock()
	pending = nil
	pendingMu.Unlock()

	EmitMetric(nil, "scheduler", "batch_duration_ms", 5, "gauge", nil)

	pendingMu.Lock()
	defer pendingMu.Unlock()
	if len(pending) != 0 {
		t.Fatalf("expected empty queue, got %d", len(pending))
	}
}
