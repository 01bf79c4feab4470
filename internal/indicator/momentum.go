package indicator

// Momentum is the last price minus the price n steps back.
func Momentum(p []float64, n int) float64 {
	if n <= 0 || len(p) <= n {
		return 0
	}
	return last(p) - p[len(p)-1-n]
}

// ROC is Momentum(p, n) as a percentage of the earlier price.
func ROC(p []float64, n int) float64 {
	if n <= 0 || len(p) <= n {
		return 0
	}
	return ratio(Momentum(p, n), p[len(p)-1-n]) * 100
}

// TrendStrength is (SMA(20) − SMA(50)) / SMA(50). Windows shorter than 20
// give 0; between 20 and 50 the long average spans the whole window.
func TrendStrength(p []float64) float64 {
	if len(p) < 20 {
		return 0
	}
	long := 50
	if len(p) < long {
		long = len(p)
	}
	sma50 := SMA(p, long)
	return ratio(SMA(p, 20)-sma50, sma50)
}

// SupportResistance is the offset of the last price from the window mean,
// relative to the mean. Fewer than 10 prices give 0.
func SupportResistance(p []float64) float64 {
	if len(p) < 10 {
		return 0
	}
	m := mean(p)
	return ratio(last(p)-m, m)
}

// WeightedTrend compares a linearly weighted average (newer prices weigh
// more) against the first price of the window.
func WeightedTrend(p []float64) float64 {
	if len(p) < 2 {
		return 0
	}
	n := float64(len(p))
	totalWeight, weighted := 0.0, 0.0
	for i, v := range p {
		w := float64(i+1) / n
		totalWeight += w
		weighted += v * w
	}
	return ratio(weighted/totalWeight-p[0], p[0])
}

// AvgReturn is the mean single-step return over the last min(10, len−1)
// steps. Fewer than 3 prices give 0.
func AvgReturn(p []float64) float64 {
	if len(p) < 3 {
		return 0
	}
	lookback := 10
	if len(p)-1 < lookback {
		lookback = len(p) - 1
	}
	sum := 0.0
	for i := len(p) - lookback; i < len(p); i++ {
		sum += ratio(p[i]-p[i-1], p[i-1])
	}
	return sum / float64(lookback)
}

// Acceleration is the difference between the last two single-step returns.
func Acceleration(p []float64) float64 {
	n := len(p)
	if n < 3 {
		return 0
	}
	return ratio(p[n-1]-p[n-2], p[n-2]) - ratio(p[n-2]-p[n-3], p[n-3])
}

// LongTermTrend is the least-squares slope of the window normalized by its
// first price. It needs at least 100 prices.
func LongTermTrend(p []float64) float64 {
	n := len(p)
	if n < 100 {
		return 0
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i, v := range p {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumX2 += x * x
	}
	fn := float64(n)
	slope := ratio(fn*sumXY-sumX*sumY, fn*sumX2-sumX*sumX)
	return ratio(slope, p[0])
}

// MarketCycle compares 30-step and 10-step momentum.
func MarketCycle(p []float64) float64 {
	if len(p) < 31 {
		return 0
	}
	m30 := Momentum(p, 30)
	m10 := Momentum(p, 10)
	if m30 < 0 {
		return ratio(m30-m10, -m30)
	}
	return ratio(m30-m10, m30)
}
