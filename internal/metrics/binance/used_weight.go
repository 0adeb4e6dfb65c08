package binancemetrics

import (
	"net/http"
	"strconv"

	"moverscan/internal/metrics"
	"moverscan/logger"
)

// ReportUsedWeight reads Binance's used-weight headers and emits a
// used_weight gauge. It returns the parsed weight and whether one was found.
func ReportUsedWeight(log *logger.Log, resp *http.Response, component, symbol string) (float64, bool) {
	if log == nil || resp == nil {
		return 0, false
	}

	headers := []struct {
		key    string
		window string
	}{
		{"X-MBX-USED-WEIGHT-1M", "1m"},
		{"X-MBX-USED-WEIGHT", "1m"},
	}

	for _, h := range headers {
		value := resp.Header.Get(h.key)
		if value == "" {
			continue
		}

		used, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.WithComponent(component).WithFields(logger.Fields{
				"symbol": symbol,
				"header": h.key,
				"value":  value,
			}).WithError(err).Debug("failed to parse used weight header")
			continue
		}

		metrics.EmitMetric(log, component, "used_weight", used, "gauge", logger.Fields{
			"exchange": "binance",
			"symbol":   symbol,
			"window":   h.window,
		})
		return used, true
	}

	return 0, false
}

// Headroom returns the share of ceiling still unused, clamped to [0, 1].
func Headroom(used float64, ceiling int64) float64 {
	if ceiling <= 0 {
		return 0
	}
	left := 1 - used/float64(ceiling)
	switch {
	case left < 0:
		return 0
	case left > 1:
		return 1
	default:
		return left
	}
}
