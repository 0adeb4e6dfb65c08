package metrics

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"moverscan/logger"
)

// maxDatumsPerRequest is the PutMetricData limit per call.
const maxDatumsPerRequest = 1000

type cloudWatchState struct {
	client    *cloudwatch.Client
	namespace string
	region    string
}

var (
	cwState atomic.Pointer[cloudWatchState]

	pendingMu sync.Mutex
	pending   []cwtypes.MetricDatum

	publishMetricsFunc = publishMetrics
)

// InitCloudWatch enables CloudWatch publishing. Metrics are buffered until
// FlushCloudWatch so a run makes a handful of API calls instead of one per
// event. A failure to load AWS configuration leaves publishing disabled.
func InitCloudWatch(ctx context.Context, region, namespace string) {
	log := logger.GetLogger().WithComponent("cloudwatch")

	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	state := &cloudWatchState{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
		region:    cfg.Region,
	}
	if state.namespace == "" {
		state.namespace = "MoverScan"
	}
	cwState.Store(state)

	log.WithFields(logger.Fields{
		"region":    state.region,
		"namespace": state.namespace,
	}).Info("initialized CloudWatch client")
}

// EmitMetric logs the metric, hands it to registered handlers and queues it
// for CloudWatch when publishing is enabled.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	event, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}

	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}

	numericValue, ok := toFloat64(event.Value)
	if !ok {
		logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": event.Name}).Debug("non-numeric metric value; skipping publish")
		return
	}

	datum := metricDatum(event, numericValue)

	pendingMu.Lock()
	pending = append(pending, datum)
	pendingMu.Unlock()
}

// FlushCloudWatch publishes every queued datum.
func FlushCloudWatch(ctx context.Context) {
	pendingMu.Lock()
	data := pending
	pending = nil
	pendingMu.Unlock()

	state := cwState.Load()
	if state == nil || state.client == nil || len(data) == 0 {
		return
	}

	for start := 0; start < len(data); start += maxDatumsPerRequest {
		end := start + maxDatumsPerRequest
		if end > len(data) {
			end = len(data)
		}
		publishMetricsFunc(ctx, state, data[start:end])
	}
}

func metricDatum(event Metric, value float64) cwtypes.MetricDatum {
	unit := cwtypes.StandardUnitCount
	if rawUnit, ok := event.Fields["unit"]; ok {
		if unitStr, ok := rawUnit.(string); ok {
			if parsed, found := metricUnitFromString(unitStr); found {
				unit = parsed
			} else {
				logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": event.Name, "unit": unitStr}).Debug("unsupported metric unit; defaulting to Count")
			}
		}
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(event.Component)}}
	for k, v := range event.Fields {
		// per-instrument and per-run values would explode dimension cardinality
		if k == "unit" || k == "symbol" || k == "run_id" {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	ts := event.Timestamp
	return cwtypes.MetricDatum{
		MetricName: aws.String(event.Name),
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(value),
		Timestamp:  &ts,
	}
}

func publishMetrics(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	names := make([]string, 0, len(data))
	for _, datum := range data {
		if datum.MetricName != nil {
			names = append(names, *datum.MetricName)
		}
	}

	logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{
		"count":   len(data),
		"metrics": strings.Join(names, ","),
	}).Debug("published metrics to CloudWatch")
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "milliseconds", "ms":
		return cwtypes.StandardUnitMilliseconds, true
	case "seconds", "s":
		return cwtypes.StandardUnitSeconds, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
