package rate

import "moverscan/models"

// DefaultRequestWeightLimit is assumed when the exchange does not advertise a
// REQUEST_WEIGHT per MINUTE limit.
const DefaultRequestWeightLimit int64 = 2400

// safetyMargin keeps usage below the ceiling to absorb clock skew between
// our batch window and the exchange's rolling minute.
const safetyMargin = 0.90

// RequestWeight returns the weight Binance charges for one klines request
// asking for limit candles.
func RequestWeight(limit int) int {
	switch {
	case limit <= 99:
		return 1
	case limit <= 499:
		return 2
	case limit <= 1000:
		return 5
	default:
		return 10
	}
}

// RequestWeightLimit finds the REQUEST_WEIGHT per MINUTE ceiling. The boolean
// is false when the fallback was used.
func RequestWeightLimit(limits []models.RateLimit) (int64, bool) {
	for _, rl := range limits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" && rl.Limit > 0 {
			return rl.Limit, true
		}
	}
	return DefaultRequestWeightLimit, false
}

// BatchSize is the number of requests of the given weight that fit in one
// minute under the safety margin. It is never below one.
func BatchSize(ceiling int64, weight int) int {
	if weight < 1 {
		weight = 1
	}
	safe := int64(float64(ceiling) * safetyMargin)
	size := int(safe / int64(weight))
	if size < 1 {
		return 1
	}
	return size
}
