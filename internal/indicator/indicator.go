// Package indicator provides technical indicator calculations over price and
// volume windows.
//
// Every function is pure: it reads the slice it is given, never retains it,
// and returns a neutral default when the window is too short for its period.
// Windows are ordered oldest first.
package indicator

import "math"

func last(p []float64) float64 {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1]
}

func tail(p []float64, n int) []float64 {
	if n <= 0 || n >= len(p) {
		return p
	}
	return p[len(p)-n:]
}

func mean(p []float64) float64 {
	if len(p) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	return sum / float64(len(p))
}

func popStdDev(p []float64) float64 {
	if len(p) < 2 {
		return 0
	}
	m := mean(p)
	sum := 0.0
	for _, v := range p {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(p)))
}

// ratio returns a/b, or 0 when b is zero or the result is not finite.
func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	r := a / b
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
