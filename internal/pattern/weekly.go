package pattern

import (
	"math"
	"sort"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

func (d *Detector) weekly(w window) []model.Pattern {
	p := w.closes
	cur := w.current()
	trend := rangeTrend(p)
	vol := returnVolatility(p)

	var out []model.Pattern
	switch {
	case trend > 0.03 && vol < 0.08:
		out = append(out, w.pattern(model.PatternWeeklyUptrend, cur, 0.8,
			"Strong weekly bullish trend with controlled volatility"))
	case trend < -0.03 && vol < 0.08:
		out = append(out, w.pattern(model.PatternWeeklyDowntrend, cur, 0.8,
			"Strong weekly bearish trend with controlled volatility"))
	case vol > 0.12:
		out = append(out, w.pattern(model.PatternHighWeeklyVolatility, cur, 0.7,
			"Elevated weekly volatility indicates uncertainty"))
	default:
		out = append(out, w.pattern(model.PatternWeeklyConsolidation, cur, 0.6,
			"Price consolidating within weekly range"))
	}

	if cur == 0 {
		return out
	}
	support, resistance := decile(p, 1), decile(p, 9)
	if math.Abs(cur-support)/cur < 0.03 {
		out = append(out, w.pattern(model.PatternWeeklySupport, support, 0.85,
			"Approaching significant weekly support level"))
	}
	if math.Abs(cur-resistance)/cur < 0.03 {
		out = append(out, w.pattern(model.PatternWeeklyResistance, resistance, 0.85,
			"Approaching significant weekly resistance level"))
	}
	return out
}

// rangeTrend compares the mean of the first and last quarter of the window
// (at least 10 points each).
func rangeTrend(p []float64) float64 {
	if len(p) < 20 {
		return 0
	}
	sample := max(10, len(p)/4)
	early := mean(p[:sample])
	recent := mean(p[len(p)-sample:])
	if early == 0 {
		return 0
	}
	return (recent - early) / early
}

// returnVolatility is the population stddev of single-step returns.
func returnVolatility(p []float64) float64 {
	if len(p) < 10 {
		return 0
	}
	returns := make([]float64, 0, len(p)-1)
	for i := 1; i < len(p); i++ {
		if p[i-1] == 0 {
			continue
		}
		returns = append(returns, (p[i]-p[i-1])/p[i-1])
	}
	return stddev(returns)
}

// decile picks the element at index len*k/10 of the sorted window, clamped
// to the last index.
func decile(p []float64, k int) float64 {
	if len(p) == 0 {
		return 0
	}
	sorted := append([]float64(nil), p...)
	sort.Float64s(sorted)
	idx := len(sorted) * k / 10
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
