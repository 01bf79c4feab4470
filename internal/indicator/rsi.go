package indicator

// RSI is the relative strength index over the last n price deltas, using the
// average gain and average loss of that span. It returns 50 with fewer than
// n+1 prices and 100 when the average loss is exactly zero.
func RSI(p []float64, n int) float64 {
	if n <= 0 || len(p) < n+1 {
		return 50.0
	}

	gains, losses := 0.0, 0.0
	for i := len(p) - n; i < len(p); i++ {
		delta := p[i] - p[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(n)
	avgLoss := losses / float64(n)
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
