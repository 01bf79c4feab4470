package indicator

// SMA is the simple moving average of the last n prices. With fewer than n
// prices it returns the last price.
func SMA(p []float64, n int) float64 {
	if len(p) == 0 {
		return 0
	}
	if n <= 0 || len(p) < n {
		return last(p)
	}
	return mean(p[len(p)-n:])
}

// EMA is the exponential moving average with smoothing 2/(n+1), seeded with
// the first element of the window.
func EMA(p []float64, n int) float64 {
	if len(p) == 0 {
		return 0
	}
	if n <= 0 {
		return last(p)
	}
	k := 2.0 / float64(n+1)
	ema := p[0]
	for _, v := range p[1:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// MACD is EMA(12) − EMA(26).
func MACD(p []float64) float64 {
	return EMA(p, 12) - EMA(p, 26)
}
