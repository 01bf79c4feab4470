package indicator

// VolumeRatio is the last volume relative to the mean of the earlier ones.
// It returns 0.5 when there is no usable baseline.
func VolumeRatio(v []float64) float64 {
	if len(v) < 2 {
		return 0.5
	}
	avg := mean(v[:len(v)-1])
	if avg == 0 {
		return 0.5
	}
	return last(v) / avg
}

// VolumePriceTrend is the volume-weighted mean of single-step returns.
func VolumePriceTrend(v, p []float64) float64 {
	n := len(p)
	if len(v) < n {
		n = len(v)
	}
	if n < 2 {
		return 0
	}
	volSum, weighted := 0.0, 0.0
	for i := 1; i < n; i++ {
		volSum += v[i]
		weighted += ratio(p[i]-p[i-1], p[i-1]) * v[i]
	}
	return ratio(weighted, volSum)
}
