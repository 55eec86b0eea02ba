package tracking

// RSIPeriod is the standard Wilder RSI lookback.
const RSIPeriod = 14

// AvgVolumePeriod is the lookback for the volume baseline.
const AvgVolumePeriod = 50

// RSI computes Wilder-smoothed RSI over the final period of closes.
// Returns 0 when there is not enough history (callers treat 0 as "no RSI"
// rather than an oversold reading).
func RSI(closes []float64, period int) float64 {
	if period <= 0 {
		period = RSIPeriod
	}
	if len(closes) < period+1 {
		return 0
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	// Wilder smoothing over the remainder of the series.
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// AvgVolume returns the simple average of up to period trailing volumes.
func AvgVolume(volumes []float64, period int) float64 {
	if period <= 0 {
		period = AvgVolumePeriod
	}
	if len(volumes) == 0 {
		return 0
	}
	start := 0
	if len(volumes) > period {
		start = len(volumes) - period
	}
	var sum float64
	for _, v := range volumes[start:] {
		sum += v
	}
	return sum / float64(len(volumes)-start)
}
