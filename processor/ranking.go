package processor

import (
	"math"
	"sort"
	"time"

	"moverscan/logger"
	"moverscan/models"
)

// Rank orders results by movement, largest first. The sort is stable and
// NaN movements sort after every number.
func Rank(results []models.MovementResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].MovementPct, results[j].MovementPct
		if math.IsNaN(a) {
			return false
		}
		return math.IsNaN(b) || a > b
	})
}

// Reduce turns raw captures into a ranked snapshot. Instruments without a
// movement are left out. rsiPeriod below one disables the oscillator.
func Reduce(captures []models.FetchResult, rsiPeriod int) models.Snapshot {
	log := logger.GetLogger().WithComponent("processor")
	start := time.Now()

	results := make([]models.MovementResult, 0, len(captures))
	var asOf int64
	excluded := 0
	for _, capture := range captures {
		pct, closeTime, ok := Movement(capture.Klines)
		if !ok {
			excluded++
			log.WithFields(logger.Fields{"symbol": capture.Symbol, "candles": len(capture.Klines)}).Debug("no valid movement; excluding instrument")
			continue
		}

		res := models.MovementResult{
			Symbol:      capture.Symbol,
			MovementPct: pct,
			SubTypes:    capture.SubTypes,
			CloseTime:   closeTime,
		}
		if res.SubTypes == nil {
			res.SubTypes = []string{}
		}
		if rsiPeriod > 0 {
			if v, ok := RSI(Closes(capture.Klines), rsiPeriod); ok {
				res.RSI = &v
			}
		}
		if closeTime > asOf {
			asOf = closeTime
		}
		results = append(results, res)
	}

	Rank(results)

	logger.LogPerformanceEntry(log, "processor", "reduce", time.Since(start), logger.Fields{
		"captures": len(captures),
		"ranked":   len(results),
		"excluded": excluded,
	})

	return models.Snapshot{
		LastUpdatedTimestamp: asOf,
		Results:              results,
	}
}
