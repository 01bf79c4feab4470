package indicator

// StdDev is the population standard deviation of the last n prices.
// It returns 0 when fewer than n prices are available.
func StdDev(p []float64, n int) float64 {
	if n <= 0 || len(p) < n {
		return 0
	}
	return popStdDev(p[len(p)-n:])
}

// Volatility is StdDev(p, n) normalized by the mean of the same span.
func Volatility(p []float64, n int) float64 {
	if n <= 0 || len(p) < n {
		return 0
	}
	w := p[len(p)-n:]
	return ratio(popStdDev(w), mean(w))
}

// RelativeVolatility is the population standard deviation of the whole
// window divided by its mean.
func RelativeVolatility(p []float64) float64 {
	if len(p) < 2 {
		return 0
	}
	return ratio(popStdDev(p), mean(p))
}

// ZScore is (last − mean) / stddev over the whole window.
func ZScore(p []float64) float64 {
	if len(p) < 2 {
		return 0
	}
	return ratio(last(p)-mean(p), popStdDev(p))
}

// BollingerPosition locates the last price within SMA(20) ± 2·stddev(20):
// 0 at the lower band, 1 at the upper. Short windows and degenerate bands
// give 0.5.
func BollingerPosition(p []float64) float64 {
	if len(p) < 20 {
		return 0.5
	}
	mid := SMA(p, 20)
	sd := StdDev(p, 20)
	upper := mid + 2*sd
	lower := mid - 2*sd
	if upper == lower {
		return 0.5
	}
	return (last(p) - lower) / (upper - lower)
}

// ReturnStdDev is the population standard deviation of returns taken every
// step points (step 1 gives single-step returns).
func ReturnStdDev(p []float64, step int) float64 {
	if step <= 0 {
		step = 1
	}
	var returns []float64
	for i := step; i < len(p); i += step {
		returns = append(returns, ratio(p[i]-p[i-step], p[i-step]))
	}
	return popStdDev(returns)
}
