package processor

// rsiSeed starts both averages on the first close so the ratio is always
// defined, even for a flat series.
const rsiSeed = 0.1

// RSI computes the relative strength index of closes over period. Gains and
// losses are smoothed with an exponential moving average using
// k = 2/(period+1); the first close contributes rsiSeed to both. ok is false
// when period is below one or fewer than period closes are available.
func RSI(closes []float64, period int) (value float64, ok bool) {
	if period < 1 || len(closes) < period {
		return 0, false
	}

	k := 2 / float64(period+1)
	up, down := rsiSeed, rsiSeed
	for i := 1; i < len(closes); i++ {
		gain, loss := 0.0, 0.0
		if closes[i] > closes[i-1] {
			gain = closes[i] - closes[i-1]
		} else {
			loss = closes[i-1] - closes[i]
		}
		up = k*gain + (1-k)*up
		down = k*loss + (1-k)*down
	}

	return 100 * up / (up + down), true
}
