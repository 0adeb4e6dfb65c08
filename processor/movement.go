package processor

import (
	"math"

	"moverscan/models"
)

// Movement returns the percentage change between the close of the first and
// the last valid candle, and the close time of the last one. Malformed
// candles between the two endpoints are ignored. ok is false when no valid
// candle exists or the first valid close is zero.
func Movement(candles []models.Candle) (pct float64, closeTime int64, ok bool) {
	first := -1
	for i := range candles {
		if candles[i].Valid() {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, 0, false
	}

	last := first
	for i := len(candles) - 1; i > first; i-- {
		if candles[i].Valid() {
			last = i
			break
		}
	}

	base := candles[first].Close.Value
	if base == 0 {
		return 0, 0, false
	}

	pct = (candles[last].Close.Value/base - 1) * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0, 0, false
	}
	return pct, candles[last].CloseTime.Value, true
}

// Closes returns the present close prices in order.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		if c.Close.Valid {
			out = append(out, c.Close.Value)
		}
	}
	return out
}
