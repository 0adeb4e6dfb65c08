package binancemetrics

import (
	"net/http"
	"testing"
	"time"

	"moverscan/internal/metrics"
	"moverscan/logger"
)

func TestReportUsedWeight_Success(t *testing.T) {
	log := logger.GetLogger()
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-MBX-USED-WEIGHT-1M", "123.5")

	events := make(chan metrics.Metric, 1)
	id := metrics.RegisterMetricHandler(func(m metrics.Metric) { events <- m })
	t.Cleanup(func() { metrics.UnregisterMetricHandler(id) })

	weight, reported := ReportUsedWeight(log, resp, "klines_reader", "BTCUSDT")
	if !reported {
		t.Fatalf("expected metric to be reported")
	}
	if weight != 123.5 {
		t.Fatalf("unexpected weight: %v", weight)
	}

	select {
	case event := <-events:
		if event.Name != "used_weight" || event.Fields["symbol"] != "BTCUSDT" || event.Fields["window"] != "1m" {
			t.Fatalf("unexpected event: %+v", event)
		}
	default:
		t.Fatal("expected metric event to be emitted")
	}
}

func TestReportUsedWeight_Invalid(t *testing.T) {
	log := logger.GetLogger()
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-MBX-USED-WEIGHT-1M", "not-a-number")

	events := make(chan metrics.Metric, 1)
	id := metrics.RegisterMetricHandler(func(m metrics.Metric) { events <- m })
	t.Cleanup(func() { metrics.UnregisterMetricHandler(id) })

	if _, reported := ReportUsedWeight(log, resp, "klines_reader", "BTCUSDT"); reported {
		t.Fatalf("expected no metric to be reported for invalid header")
	}

	select {
	case <-events:
		t.Fatal("did not expect metric emission for invalid header")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestReportUsedWeight_NoHeader(t *testing.T) {
	if _, reported := ReportUsedWeight(logger.GetLogger(), &http.Response{Header: http.Header{}}, "klines_reader", "ETHUSDT"); reported {
		t.Fatal("expected no metric without header")
	}
	if _, reported := ReportUsedWeight(nil, nil, "klines_reader", "ETHUSDT"); reported {
		t.Fatal("expected no metric for nil inputs")
	}
}

func TestHeadroom(t *testing.T) {
	cases := []struct {
		used    float64
		ceiling int64
		want    float64
	}{
		{600, 2400, 0.75},
		{3000, 2400, 0},
		{0, 2400, 1},
		{10, 0, 0},
	}
	for _, c := range cases {
		if got := Headroom(c.used, c.ceiling); got != c.want {
			t.Errorf("Headroom(%v, %d) = %v, want %v", c.used, c.ceiling, got, c.want)
		}
	}
}
